package dynamodb

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

// Money is stored as strings so no precision is lost in DynamoDB numbers.

type productItem struct {
	ID          string    `dynamodbav:"id"`
	Name        string    `dynamodbav:"name"`
	Description string    `dynamodbav:"description,omitempty"`
	Category    string    `dynamodbav:"category"`
	Brand       string    `dynamodbav:"brand,omitempty"`
	Price       string    `dynamodbav:"price"`
	Stock       int       `dynamodbav:"stock"`
	Rating      float64   `dynamodbav:"rating"`
	ImageURL    string    `dynamodbav:"imageUrl,omitempty"`
	Active      bool      `dynamodbav:"active"`
	CreatedAt   time.Time `dynamodbav:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt"`
}

func toProductItem(p *domain.Product) productItem {
	return productItem{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Brand:       p.Brand,
		Price:       p.Price.String(),
		Stock:       p.Stock,
		Rating:      p.Rating,
		ImageURL:    p.ImageURL,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (i productItem) toDomain() (*domain.Product, error) {
	price, err := decimal.NewFromString(i.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		ID:          i.ID,
		Name:        i.Name,
		Description: i.Description,
		Category:    i.Category,
		Brand:       i.Brand,
		Price:       price,
		Stock:       i.Stock,
		Rating:      i.Rating,
		ImageURL:    i.ImageURL,
		Active:      i.Active,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}, nil
}

type orderLineItem struct {
	ProductID string `dynamodbav:"productId"`
	Name      string `dynamodbav:"name"`
	ImageURL  string `dynamodbav:"imageUrl,omitempty"`
	Quantity  int    `dynamodbav:"quantity"`
	UnitPrice string `dynamodbav:"unitPrice"`
}

type orderItem struct {
	ID              string          `dynamodbav:"id"`
	UserID          string          `dynamodbav:"userId"`
	CreatedAtMs     int64           `dynamodbav:"createdAtMs"`
	Items           []orderLineItem `dynamodbav:"items"`
	Subtotal        string          `dynamodbav:"subtotal"`
	Tax             string          `dynamodbav:"tax"`
	ShippingCost    string          `dynamodbav:"shippingCost"`
	Total           string          `dynamodbav:"total"`
	Status          string          `dynamodbav:"status"`
	ShippingAddress domain.Address  `dynamodbav:"shippingAddress"`
	PaymentMethod   string          `dynamodbav:"paymentMethod"`
	TrackingNumber  string          `dynamodbav:"trackingNumber,omitempty"`
	CancelReason    string          `dynamodbav:"cancelReason,omitempty"`
	CreatedAt       time.Time       `dynamodbav:"createdAt"`
	UpdatedAt       time.Time       `dynamodbav:"updatedAt"`
	DeliveredAt     *time.Time      `dynamodbav:"deliveredAt,omitempty"`
	CancelledAt     *time.Time      `dynamodbav:"cancelledAt,omitempty"`
}

func toOrderItem(o *domain.Order) orderItem {
	lines := make([]orderLineItem, len(o.Items))
	for i, l := range o.Items {
		lines[i] = orderLineItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			ImageURL:  l.ImageURL,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
		}
	}
	return orderItem{
		ID:              o.ID,
		UserID:          o.UserID,
		CreatedAtMs:     o.CreatedAt.UnixMilli(),
		Items:           lines,
		Subtotal:        o.Subtotal.String(),
		Tax:             o.Tax.String(),
		ShippingCost:    o.ShippingCost.String(),
		Total:           o.Total.String(),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		CancelReason:    o.CancelReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
	}
}

func (i orderItem) toDomain() (*domain.Order, error) {
	lines := make([]domain.OrderLine, len(i.Items))
	for n, l := range i.Items {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		lines[n] = domain.OrderLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			ImageURL:  l.ImageURL,
			Quantity:  l.Quantity,
			UnitPrice: price,
		}
	}

	money := make([]decimal.Decimal, 4)
	for n, s := range []string{i.Subtotal, i.Tax, i.ShippingCost, i.Total} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		money[n] = d
	}

	return &domain.Order{
		ID:              i.ID,
		UserID:          i.UserID,
		Items:           lines,
		Subtotal:        money[0],
		Tax:             money[1],
		ShippingCost:    money[2],
		Total:           money[3],
		Status:          domain.OrderStatus(i.Status),
		ShippingAddress: i.ShippingAddress,
		PaymentMethod:   i.PaymentMethod,
		TrackingNumber:  i.TrackingNumber,
		CancelReason:    i.CancelReason,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
		DeliveredAt:     i.DeliveredAt,
		CancelledAt:     i.CancelledAt,
	}, nil
}

type userItem struct {
	ID        string    `dynamodbav:"id"`
	Name      string    `dynamodbav:"name"`
	Email     string    `dynamodbav:"email"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}
