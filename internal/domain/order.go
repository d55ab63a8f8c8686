package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Денежные значения сериализуются в JSON числами, а не строками.
	decimal.MarshalJSONWithoutQuotes = true
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции; назначается хранилищем, если клиент его не передал.
	ID uuid.UUID `json:"id"`
	// OrderID — ссылка на заказ-владелец (внешний ключ).
	OrderID uuid.UUID `json:"order_id"`
	// ProductName — произвольное название товара.
	ProductName string `json:"product_name"`
	// Quantity — количество единиц товара. Не валидируется.
	Quantity int32 `json:"quantity"`
	// UnitPrice — цена за единицу в точном десятичном представлении.
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// TotalPrice возвращает стоимость позиции: quantity * unit_price.
// Значение никогда не хранится и всегда вычисляется заново.
func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// MarshalJSON добавляет в ответ вычисляемое поле total_price.
func (i OrderItem) MarshalJSON() ([]byte, error) {
	type plain OrderItem
	return json.Marshal(struct {
		plain
		TotalPrice decimal.Decimal `json:"total_price"`
	}{
		plain:      plain(i),
		TotalPrice: i.TotalPrice(),
	})
}

// Order агрегирует шапку заказа и его позиции.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	OrderNumber  string          `json:"order_number"`
	CustomerName string          `json:"customer_name"`
	OrderDate    time.Time       `json:"order_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	// Items принадлежат заказу и удаляются вместе с ним.
	Items []OrderItem `json:"items"`
}

// Prepare готовит заказ к сохранению: назначает недостающие идентификаторы,
// проставляет order_id у всех позиций и приводит дату к UTC.
// Сумма заказа не пересчитывается по позициям.
func (o *Order) Prepare(newID func() uuid.UUID) {
	if newID == nil {
		newID = uuid.New
	}
	if o.ID == uuid.Nil {
		o.ID = newID()
	}
	o.OrderDate = NormalizeTime(o.OrderDate)
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	for idx := range o.Items {
		if o.Items[idx].ID == uuid.Nil {
			o.Items[idx].ID = newID()
		}
		o.Items[idx].OrderID = o.ID
	}
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	cp := o
	cp.Items = make([]OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return cp
}

// UpdateFields извлекает из заказа поля, которые меняет операция обновления.
func (o Order) UpdateFields() OrderUpdate {
	return OrderUpdate{
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		OrderDate:    o.OrderDate,
		TotalAmount:  o.TotalAmount,
	}
}

// OrderUpdate — набор полей, перезаписываемых при обновлении заказа.
// Позиции заказа этим обновлением не затрагиваются.
type OrderUpdate struct {
	OrderNumber  string
	CustomerName string
	OrderDate    time.Time
	TotalAmount  decimal.Decimal
}

// Apply перезаписывает четыре скалярных поля заказа.
func (u OrderUpdate) Apply(o *Order) {
	o.OrderNumber = u.OrderNumber
	o.CustomerName = u.CustomerName
	o.OrderDate = NormalizeTime(u.OrderDate)
	o.TotalAmount = u.TotalAmount
}

// UpdateFields извлекает из позиции поля, которые меняет операция обновления.
func (i OrderItem) UpdateFields() OrderItemUpdate {
	return OrderItemUpdate{
		ProductName: i.ProductName,
		Quantity:    i.Quantity,
		UnitPrice:   i.UnitPrice,
	}
}

// OrderItemUpdate — набор полей, перезаписываемых при обновлении позиции.
type OrderItemUpdate struct {
	ProductName string
	Quantity    int32
	UnitPrice   decimal.Decimal
}

// Apply перезаписывает изменяемые поля позиции.
func (u OrderItemUpdate) Apply(i *OrderItem) {
	i.ProductName = u.ProductName
	i.Quantity = u.Quantity
	i.UnitPrice = u.UnitPrice
}

// NormalizeTime приводит время к UTC с точностью до микросекунд,
// как его хранит PostgreSQL.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
