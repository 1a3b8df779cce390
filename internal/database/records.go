package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/Renal37/fulfillment-connector/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Определение пользовательских ошибок
var (
	ErrDuplicateRecord = errors.New("запись коннектора уже существует") // Заказ уже зарегистрирован
)

// SQL-запросы для работы с записями коннектора
const (
	InsertRecordQuery = `
		INSERT INTO
			connector_orders (order_id, idempotency_key, order_payload)
		VALUES ($1, $2, $3)
	`
	SelectRecordQuery = `
		SELECT
			order_id,
			idempotency_key,
			status,
			retry_count,
			hold_cycles,
			last_error_code,
			last_error_message,
			last_error_retryable,
			fulfillment_order_id,
			fulfillment_status,
			fulfillment_created_at,
			tracking_number,
			carrier,
			cancel_requested,
			stale_alerted,
			order_payload,
			created_at,
			updated_at
		FROM
			connector_orders
		WHERE
			order_id = $1
	`
	SelectRecordsByStatusQuery = `
		SELECT
			order_id,
			idempotency_key,
			status,
			retry_count,
			hold_cycles,
			last_error_code,
			last_error_message,
			last_error_retryable,
			fulfillment_order_id,
			fulfillment_status,
			fulfillment_created_at,
			tracking_number,
			carrier,
			cancel_requested,
			stale_alerted,
			order_payload,
			created_at,
			updated_at
		FROM
			connector_orders
		WHERE
			status = ANY($1)
		ORDER BY
			created_at
	`
	UpdateRecordStatusQuery = `
		UPDATE
			connector_orders
		SET
			status = $3,
			last_error_code = $4,
			last_error_message = $5,
			last_error_retryable = $6,
			updated_at = now()
		WHERE
			order_id = $1 AND status = $2
	`
	InsertTransitionQuery = `
		INSERT INTO
			record_transitions (order_id, from_status, to_status, event_type, error_code, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	SelectTransitionsQuery = `
		SELECT
			from_status,
			to_status,
			event_type,
			error_code,
			error_message,
			created_at
		FROM
			record_transitions
		WHERE
			order_id = $1
		ORDER BY
			id
	`
	IncrementRetryQuery = `
		UPDATE
			connector_orders
		SET
			retry_count = retry_count + 1,
			last_error_code = $2,
			last_error_message = $3,
			last_error_retryable = $4,
			updated_at = now()
		WHERE
			order_id = $1
	`
	IncrementHoldCyclesQuery = `
		UPDATE
			connector_orders
		SET
			hold_cycles = hold_cycles + 1,
			updated_at = now()
		WHERE
			order_id = $1
		RETURNING hold_cycles
	`
	SetFulfillmentResultQuery = `
		UPDATE
			connector_orders
		SET
			fulfillment_order_id = $2,
			fulfillment_status = $3,
			fulfillment_created_at = now(),
			updated_at = now()
		WHERE
			order_id = $1
	`
	SetFulfillmentStatusQuery = `
		UPDATE
			connector_orders
		SET
			fulfillment_status = $2,
			updated_at = now()
		WHERE
			order_id = $1
	`
	SetTrackingQuery = `
		UPDATE
			connector_orders
		SET
			tracking_number = $2,
			carrier = $3,
			updated_at = now()
		WHERE
			order_id = $1
	`
	SetCancelRequestedQuery = `
		UPDATE
			connector_orders
		SET
			cancel_requested = $2,
			updated_at = now()
		WHERE
			order_id = $1
	`
	MarkStaleAlertedQuery = `
		UPDATE
			connector_orders
		SET
			stale_alerted = TRUE,
			updated_at = now()
		WHERE
			order_id = $1
	`
	SelectStatusForRedriveQuery = `
		SELECT
			status
		FROM
			connector_orders
		WHERE
			order_id = $1 AND status IN ('FAILED', 'COMPLETED')
		FOR UPDATE
	`
	ResetForRedriveQuery = `
		UPDATE
			connector_orders
		SET
			status = 'PENDING',
			retry_count = 0,
			hold_cycles = 0,
			last_error_code = NULL,
			last_error_message = NULL,
			last_error_retryable = NULL,
			stale_alerted = FALSE,
			cancel_requested = FALSE,
			updated_at = now()
		WHERE
			order_id = $1
	`
)

// RecordDB - запись коннектора по одному заказу маркетплейса.
type RecordDB struct {
	OrderID              string
	IdempotencyKey       string
	Status               StatusDB
	RetryCount           int
	HoldCycles           int
	LastErrorCode        *string
	LastErrorMessage     *string
	LastErrorRetryable   *bool
	FulfillmentOrderID   *string
	FulfillmentStatus    *string
	FulfillmentCreatedAt *time.Time
	TrackingNumber       *string
	Carrier              *string
	CancelRequested      bool
	StaleAlerted         bool
	OrderPayload         []byte
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LastError собирает поля последней ошибки в модель события.
func (r *RecordDB) LastError() *models.EventError {
	if r.LastErrorCode == nil {
		return nil
	}

	e := &models.EventError{Code: *r.LastErrorCode}
	if r.LastErrorMessage != nil {
		e.Message = *r.LastErrorMessage
	}
	if r.LastErrorRetryable != nil {
		e.Retryable = *r.LastErrorRetryable
	}
	return e
}

// StatusDB - статус конвейера с возможностью преобразования в/из базы данных.
type StatusDB struct {
	models.ProcessingStatus
}

// Реализация интерфейса sql.Scanner для чтения статуса из базы данных
func (s *StatusDB) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("статус записи должен быть строкой, а не %T", value)
	}

	*s = StatusDB{models.ProcessingStatus(strVal)}
	return nil
}

// Реализация интерфейса driver.Valuer для записи статуса в базу данных
func (s StatusDB) Value() (driver.Value, error) {
	return string(s.ProcessingStatus), nil
}

// CreateRecord создаёт новую запись коннектора в статусе PENDING.
func (d *Database) CreateRecord(ctx context.Context, orderID, idempotencyKey string, orderPayload []byte) error {
	_, err := d.db.Exec(ctx, InsertRecordQuery, orderID, idempotencyKey, orderPayload)
	if err != nil {
		var e *pgconn.PgError
		// Нарушение уникальности означает, что заказ уже зарегистрирован коннектором
		if errors.As(err, &e) && e.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("ошибка создания записи коннектора: %w", err)
	}

	return nil
}

// FindRecord ищет запись по идентификатору заказа. Если записи нет, возвращает nil без ошибки.
func (d *Database) FindRecord(ctx context.Context, orderID string) (*RecordDB, error) {
	record := &RecordDB{}

	err := d.db.QueryRow(ctx, SelectRecordQuery, orderID).Scan(
		&record.OrderID,
		&record.IdempotencyKey,
		&record.Status,
		&record.RetryCount,
		&record.HoldCycles,
		&record.LastErrorCode,
		&record.LastErrorMessage,
		&record.LastErrorRetryable,
		&record.FulfillmentOrderID,
		&record.FulfillmentStatus,
		&record.FulfillmentCreatedAt,
		&record.TrackingNumber,
		&record.Carrier,
		&record.CancelRequested,
		&record.StaleAlerted,
		&record.OrderPayload,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска записи коннектора: %w", err)
	}

	return record, nil
}

// FindRecordsByStatus возвращает записи в любом из перечисленных статусов.
func (d *Database) FindRecordsByStatus(ctx context.Context, statuses []models.ProcessingStatus) (*[]RecordDB, error) {
	var result []RecordDB

	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	rows, err := d.db.Query(ctx, SelectRecordsByStatusQuery, values)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска записей по статусу: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item RecordDB
		if err := rows.Scan(
			&item.OrderID,
			&item.IdempotencyKey,
			&item.Status,
			&item.RetryCount,
			&item.HoldCycles,
			&item.LastErrorCode,
			&item.LastErrorMessage,
			&item.LastErrorRetryable,
			&item.FulfillmentOrderID,
			&item.FulfillmentStatus,
			&item.FulfillmentCreatedAt,
			&item.TrackingNumber,
			&item.Carrier,
			&item.CancelRequested,
			&item.StaleAlerted,
			&item.OrderPayload,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка обработки строки с записью: %w", err)
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по строкам: %w", err)
	}

	return &result, nil
}

// FindActiveRecords возвращает все нетерминальные записи (для восстановления после рестарта).
func (d *Database) FindActiveRecords(ctx context.Context) (*[]RecordDB, error) {
	return d.FindRecordsByStatus(ctx, []models.ProcessingStatus{
		models.StatusPending,
		models.StatusValidating,
		models.StatusValidated,
		models.StatusTransforming,
		models.StatusCreating,
		models.StatusFulfillmentCreated,
		models.StatusSyncingTracking,
	})
}

// TransitionStatus атомарно переводит запись из статуса from в статус to
// и в той же транзакции добавляет строку истории. Возвращает false, если
// запись уже не находится в статусе from (переход выполнил кто-то другой).
func (d *Database) TransitionStatus(
	ctx context.Context,
	orderID string,
	from, to models.ProcessingStatus,
	eventType models.EventType,
	transitionErr *models.EventError,
) (bool, error) {
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка открытия транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var errCode, errMessage *string
	var errRetryable *bool
	if transitionErr != nil {
		errCode = &transitionErr.Code
		errMessage = &transitionErr.Message
		errRetryable = &transitionErr.Retryable
	}

	tag, err := tx.Exec(ctx, UpdateRecordStatusQuery,
		orderID, StatusDB{from}, StatusDB{to}, errCode, errMessage, errRetryable)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления статуса записи: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, InsertTransitionQuery,
		orderID, StatusDB{from}, StatusDB{to}, string(eventType), errCode, errMessage); err != nil {
		return false, fmt.Errorf("ошибка записи истории перехода: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return true, nil
}

// FindTransitions возвращает историю переходов записи в порядке их выполнения.
func (d *Database) FindTransitions(ctx context.Context, orderID string) (*[]TransitionDB, error) {
	var result []TransitionDB

	rows, err := d.db.Query(ctx, SelectTransitionsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска истории переходов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item TransitionDB
		if err := rows.Scan(&item.From, &item.To, &item.EventType, &item.ErrorCode, &item.ErrorMessage, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка обработки строки истории: %w", err)
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по строкам: %w", err)
	}

	return &result, nil
}

// TransitionDB - строка истории переходов.
type TransitionDB struct {
	From         StatusDB
	To           StatusDB
	EventType    string
	ErrorCode    *string
	ErrorMessage *string
	CreatedAt    time.Time
}

// IncrementRetry увеличивает счётчик повторов и сохраняет последнюю ошибку шага.
func (d *Database) IncrementRetry(ctx context.Context, orderID string, stepErr models.EventError) error {
	_, err := d.db.Exec(ctx, IncrementRetryQuery, orderID, stepErr.Code, stepErr.Message, stepErr.Retryable)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчика повторов: %w", err)
	}
	return nil
}

// IncrementHoldCycles увеличивает счётчик циклов удержания по нехватке остатков.
func (d *Database) IncrementHoldCycles(ctx context.Context, orderID string) (int, error) {
	var holdCycles int
	if err := d.db.QueryRow(ctx, IncrementHoldCyclesQuery, orderID).Scan(&holdCycles); err != nil {
		return 0, fmt.Errorf("ошибка обновления счётчика удержаний: %w", err)
	}
	return holdCycles, nil
}

// SetFulfillmentResult сохраняет идентификатор и статус созданного заказа фулфилмент-сети.
func (d *Database) SetFulfillmentResult(ctx context.Context, orderID, fulfillmentOrderID string, status models.FulfillmentStatus) error {
	_, err := d.db.Exec(ctx, SetFulfillmentResultQuery, orderID, fulfillmentOrderID, string(status))
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата создания заказа: %w", err)
	}
	return nil
}

// SetFulfillmentStatus обновляет статус заказа на стороне фулфилмент-сети.
func (d *Database) SetFulfillmentStatus(ctx context.Context, orderID string, status models.FulfillmentStatus) error {
	_, err := d.db.Exec(ctx, SetFulfillmentStatusQuery, orderID, string(status))
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса фулфилмента: %w", err)
	}
	return nil
}

// SetTracking сохраняет трек-номер и перевозчика.
func (d *Database) SetTracking(ctx context.Context, orderID, trackingNumber, carrier string) error {
	_, err := d.db.Exec(ctx, SetTrackingQuery, orderID, trackingNumber, carrier)
	if err != nil {
		return fmt.Errorf("ошибка сохранения трек-номера: %w", err)
	}
	return nil
}

// SetCancelRequested выставляет или снимает флаг операторской отмены.
func (d *Database) SetCancelRequested(ctx context.Context, orderID string, requested bool) (bool, error) {
	tag, err := d.db.Exec(ctx, SetCancelRequestedQuery, orderID, requested)
	if err != nil {
		return false, fmt.Errorf("ошибка изменения флага отмены: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkStaleAlerted помечает, что уведомление о задержке отгрузки уже отправлено.
func (d *Database) MarkStaleAlerted(ctx context.Context, orderID string) error {
	_, err := d.db.Exec(ctx, MarkStaleAlertedQuery, orderID)
	if err != nil {
		return fmt.Errorf("ошибка пометки уведомления о задержке: %w", err)
	}
	return nil
}

// ResetForRedrive переводит терминальную запись обратно в PENDING, сохраняя
// прежний ключ идемпотентности. Возвращает false, если запись не найдена
// или ещё не достигла терминального статуса.
func (d *Database) ResetForRedrive(ctx context.Context, orderID string) (bool, error) {
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка открытия транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var status StatusDB
	if err := tx.QueryRow(ctx, SelectStatusForRedriveQuery, orderID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка чтения статуса перед повторной обработкой: %w", err)
	}

	if _, err := tx.Exec(ctx, ResetForRedriveQuery, orderID); err != nil {
		return false, fmt.Errorf("ошибка сброса записи для повторной обработки: %w", err)
	}

	if _, err := tx.Exec(ctx, InsertTransitionQuery,
		orderID, status, StatusDB{models.StatusPending}, string(models.EventRedriven), nil, nil); err != nil {
		return false, fmt.Errorf("ошибка записи истории повторной обработки: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return true, nil
}
