package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientStock is returned when a stock adjustment would drive UnitsInStock below zero
var ErrInsufficientStock = errors.New("insufficient stock")

// CreateCustomer inserts a customer. The caller supplies CustomerID.
func CreateCustomer(ctx context.Context, db *gorm.DB, c *Customer) error {
	if c.CustomerID == "" {
		return fmt.Errorf("customer id is required")
	}
	return db.WithContext(ctx).Create(c).Error
}

// CreateEmployee inserts an employee; the store assigns EmployeeID
func CreateEmployee(ctx context.Context, db *gorm.DB, e *Employee) error {
	if e.EmployeeID != 0 {
		return fmt.Errorf("employee id is assigned by the store")
	}
	return db.WithContext(ctx).Create(e).Error
}

// CreateProduct inserts a product; the store assigns ProductID
func CreateProduct(ctx context.Context, db *gorm.DB, p *Product) error {
	if p.ProductID != 0 {
		return fmt.Errorf("product id is assigned by the store")
	}
	return db.WithContext(ctx).Create(p).Error
}

// CreateOrder inserts an order and any line items in Details in one
// transaction; the store assigns OrderID.
func CreateOrder(ctx context.Context, db *gorm.DB, o *Order) error {
	if o.OrderID != 0 {
		return fmt.Errorf("order id is assigned by the store")
	}
	details := o.Details

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(o).Error; err != nil {
			return err
		}
		for i := range details {
			details[i].OrderID = o.OrderID
			if err := tx.Omit(clause.Associations).Create(&details[i]).Error; err != nil {
				return err
			}
		}
		o.Details = details
		return nil
	})
}

// AddOrderDetail inserts a line item for an existing order and product
func AddOrderDetail(ctx context.Context, db *gorm.DB, d *OrderDetail) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(d).Error
}

// FindOrder loads an order with its customer, employee and line items
func FindOrder(ctx context.Context, db *gorm.DB, orderID uint) (*Order, error) {
	var order Order
	err := db.WithContext(ctx).
		Preload("Customer").
		Preload("Employee").
		Preload("Details", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("ProductID ASC")
		}).
		Preload("Details.Product").
		First(&order, "OrderID = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderTotal returns the revenue of an order: the sum of its line totals
func OrderTotal(ctx context.Context, db *gorm.DB, orderID uint) (decimal.Decimal, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&Order{}).Where("OrderID = ?", orderID).Count(&count).Error; err != nil {
		return decimal.Zero, err
	}
	if count == 0 {
		return decimal.Zero, gorm.ErrRecordNotFound
	}

	var details []OrderDetail
	if err := db.WithContext(ctx).Where("OrderID = ?", orderID).Find(&details).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.LineTotal())
	}
	return total, nil
}

// AdjustStock adds delta (which may be negative) to a product's UnitsInStock
func AdjustStock(ctx context.Context, db *gorm.DB, productID uint, delta int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product Product
		if err := tx.First(&product, "ProductID = ?", productID).Error; err != nil {
			return err
		}
		if product.UnitsInStock+delta < 0 {
			return fmt.Errorf("product %d has %d units, cannot remove %d: %w",
				productID, product.UnitsInStock, -delta, ErrInsufficientStock)
		}
		return tx.Model(&Product{}).
			Where("ProductID = ?", productID).
			Update("UnitsInStock", gorm.Expr("UnitsInStock + ?", delta)).Error
	})
}

// MarkShipped records the shipment date of an order
func MarkShipped(ctx context.Context, db *gorm.DB, orderID uint, shippedDate string) error {
	result := db.WithContext(ctx).Model(&Order{}).
		Where("OrderID = ?", orderID).
		Update("ShippedDate", shippedDate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResolveManager looks up the employee e reports to. It returns nil when
// ReportsTo is unset.
func ResolveManager(ctx context.Context, db *gorm.DB, e Employee) (*Employee, error) {
	if e.ReportsTo == nil {
		return nil, nil
	}
	var manager Employee
	if err := db.WithContext(ctx).First(&manager, "EmployeeID = ?", *e.ReportsTo).Error; err != nil {
		return nil, err
	}
	return &manager, nil
}

// ReportingChain follows ReportsTo upwards from employeeID, returning the
// managers in order. The walk stops after maxDepth hops or when an employee
// repeats; cyclic reports whether a repeat was found.
func ReportingChain(ctx context.Context, db *gorm.DB, employeeID uint, maxDepth int) (chain []Employee, cyclic bool, err error) {
	var current Employee
	if err := db.WithContext(ctx).First(&current, "EmployeeID = ?", employeeID).Error; err != nil {
		return nil, false, err
	}

	seen := map[uint]bool{current.EmployeeID: true}
	for len(chain) < maxDepth {
		manager, err := ResolveManager(ctx, db, current)
		if err != nil {
			return chain, false, err
		}
		if manager == nil {
			return chain, false, nil
		}
		if seen[manager.EmployeeID] {
			return chain, true, nil
		}
		seen[manager.EmployeeID] = true
		chain = append(chain, *manager)
		current = *manager
	}
	return chain, false, nil
}
