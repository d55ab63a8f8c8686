package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	// itemsPerInsert держит multi-row INSERT далеко от лимита в 65535 параметров.
	itemsPerInsert = 1000
)

var (
	orderColumns = []string{"id", "order_number", "customer_name", "order_date", "total_amount"}
	itemColumns  = []string{"id", "order_id", "product_name", "quantity", "unit_price"}
)

// queryer — общий интерфейс *sql.DB и *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Каскадное удаление позиций обеспечивает внешний ключ order_items.order_id.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		query, args, err := psql.Insert("orders").
			Columns(orderColumns...).
			Values(order.ID, order.OrderNumber, order.CustomerName, order.OrderDate, order.TotalAmount).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert order: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if pgErrorCode(err) == pgUniqueViolation {
				return domain.ErrOrderAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}

		if len(order.Items) == 0 {
			return nil
		}

		for _, insertItems := range insertItemBatches(order.ID, order.Items) {
			query, args, err := insertItems.ToSql()
			if err != nil {
				return fmt.Errorf("build insert order items: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				if pgErrorCode(err) == pgUniqueViolation {
					return domain.ErrOrderItemAlreadyExists
				}
				return fmt.Errorf("insert order items: %w", err)
			}
		}
		return nil
	})
}

// insertItemBatches режет позиции на INSERT-ы не длиннее itemsPerInsert строк.
func insertItemBatches(orderID uuid.UUID, items []domain.OrderItem) []sq.InsertBuilder {
	batches := make([]sq.InsertBuilder, 0, (len(items)+itemsPerInsert-1)/itemsPerInsert)
	for start := 0; start < len(items); start += itemsPerInsert {
		end := min(start+itemsPerInsert, len(items))
		insert := psql.Insert("order_items").Columns(itemColumns...)
		for _, item := range items[start:end] {
			insert = insert.Values(item.ID, orderID, item.ProductName, item.Quantity, item.UnitPrice)
		}
		batches = append(batches, insert)
	}
	return batches
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build select order: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := loadItems(ctx, r.db, selectItemsOf(order.ID))
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}

	return order, nil
}

// List возвращает заказы в порядке вставки. Заказы и позиции читаются двумя
// запросами без параметров в одном снимке (REPEATABLE READ).
func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var orders []domain.Order
	snapshot := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := withTxOptions(ctx, r.db, snapshot, func(tx *sql.Tx) error {
		var err error
		orders, err = listOrders(ctx, tx)
		if err != nil || len(orders) == 0 {
			return err
		}

		items, err := loadItems(ctx, tx, selectAllItems())
		if err != nil {
			return err
		}
		for idx := range orders {
			orders[idx].Items = items[orders[idx].ID]
			if orders[idx].Items == nil {
				orders[idx].Items = []domain.OrderItem{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func listOrders(ctx context.Context, q queryer) ([]domain.Order, error) {
	query, args, err := psql.Select(orderColumns...).
		From("orders").
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list orders: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select("COUNT(*)").From("orders").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count orders: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (r *orderRepository) Update(ctx context.Context, id uuid.UUID, upd domain.OrderUpdate) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query, args, err := psql.Update("orders").
			Set("order_number", upd.OrderNumber).
			Set("customer_name", upd.CustomerName).
			Set("order_date", domain.NormalizeTime(upd.OrderDate)).
			Set("total_amount", upd.TotalAmount).
			Where(sq.Eq{"id": id.String()}).
			Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update order: %w", err)
		}

		order, err = scanOrder(tx.QueryRowContext(ctx, query, args...))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrOrderNotFound
			}
			return fmt.Errorf("update order: %w", err)
		}

		items, err := loadItems(ctx, tx, selectItemsOf(order.ID))
		if err != nil {
			return err
		}
		order.Items = items[order.ID]
		if order.Items == nil {
			order.Items = []domain.OrderItem{}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Delete("orders").
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete order: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exists, err := orderExists(ctx, r.db, orderID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrOrderNotFound
	}

	items, err := loadItems(ctx, r.db, selectItemsOf(orderID))
	if err != nil {
		return nil, err
	}
	if items[orderID] == nil {
		return []domain.OrderItem{}, nil
	}
	return items[orderID], nil
}

func (r *orderRepository) GetItem(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(itemColumns...).
		From("order_items").
		Where(sq.Eq{"id": itemID.String(), "order_id": orderID.String()}).
		ToSql()
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("build select order item: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderItem{}, r.missingItemError(ctx, r.db, orderID)
		}
		return domain.OrderItem{}, fmt.Errorf("select order item: %w", err)
	}
	return item, nil
}

func (r *orderRepository) CreateItem(ctx context.Context, item domain.OrderItem) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Insert("order_items").
		Columns(itemColumns...).
		Values(item.ID, item.OrderID, item.ProductName, item.Quantity, item.UnitPrice).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order item: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		switch pgErrorCode(err) {
		case pgForeignKeyViolation:
			return domain.ErrOrderNotFound
		case pgUniqueViolation:
			return domain.ErrOrderItemAlreadyExists
		}
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (r *orderRepository) UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, upd domain.OrderItemUpdate) (domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Update("order_items").
		Set("product_name", upd.ProductName).
		Set("quantity", upd.Quantity).
		Set("unit_price", upd.UnitPrice).
		Where(sq.Eq{"id": itemID.String(), "order_id": orderID.String()}).
		Suffix("RETURNING " + strings.Join(itemColumns, ", ")).
		ToSql()
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("build update order item: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderItem{}, r.missingItemError(ctx, r.db, orderID)
		}
		return domain.OrderItem{}, fmt.Errorf("update order item: %w", err)
	}
	return item, nil
}

func (r *orderRepository) DeleteItem(ctx context.Context, orderID, itemID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Delete("order_items").
		Where(sq.Eq{"id": itemID.String(), "order_id": orderID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete order item: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete order item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return r.missingItemError(ctx, r.db, orderID)
	}
	return nil
}

// missingItemError уточняет, чего именно не хватает: заказа или позиции.
func (r *orderRepository) missingItemError(ctx context.Context, q queryer, orderID uuid.UUID) error {
	exists, err := orderExists(ctx, q, orderID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderItemNotFound
}

// selectItemsOf выбирает позиции одного заказа.
func selectItemsOf(orderID uuid.UUID) sq.SelectBuilder {
	return psql.Select(itemColumns...).
		From("order_items").
		Where(sq.Eq{"order_id": orderID.String()}).
		OrderBy("seq ASC")
}

// selectAllItems выбирает позиции всех заказов; каждая позиция принадлежит заказу по FK.
func selectAllItems() sq.SelectBuilder {
	return psql.Select(itemColumns...).
		From("order_items").
		OrderBy("seq ASC")
}

// loadItems выполняет выборку позиций и группирует их по order_id в порядке вставки.
func loadItems(ctx context.Context, q queryer, sel sq.SelectBuilder) (map[uuid.UUID][]domain.OrderItem, error) {
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load order items: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]domain.OrderItem)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return result, nil
}

func orderExists(ctx context.Context, q queryer, orderID uuid.UUID) (bool, error) {
	query, args, err := psql.Select("1").
		From("orders").
		Where(sq.Eq{"id": orderID.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build order exists: %w", err)
	}

	var one int
	err = q.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &order.CustomerName, &order.OrderDate, &order.TotalAmount,
	); err != nil {
		return domain.Order{}, err
	}
	order.OrderDate = order.OrderDate.UTC()
	return order, nil
}

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var item domain.OrderItem
	if err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductName, &item.Quantity, &item.UnitPrice,
	); err != nil {
		return domain.OrderItem{}, err
	}
	return item, nil
}

// pgErrorCode возвращает SQLSTATE ошибки PostgreSQL или пустую строку.
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ domain.OrderRepository = (*orderRepository)(nil)
