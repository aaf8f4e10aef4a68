package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/apperr"
)

// MySQL error numbers the adapter interprets.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// MySQLStore is the production Store backed by database/sql and the MySQL
// driver.  Every repository method runs against the *sql.Tx opened by InTx.
type MySQLStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewMySQLStore returns a Store bound to db.
func NewMySQLStore(db *sql.DB, logger *logrus.Logger) *MySQLStore {
	return &MySQLStore{db: db, logger: logger}
}

// InTx implements Store.  The transaction is rolled back unless fn
// returns nil and the commit succeeds.  InnoDB deadlocks and lock wait
// timeouts come back as Conflict, like a failed conditional update.
func (s *MySQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		return lockContention(err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("commit failed")
		return lockContention(err)
	}
	committed = true
	return nil
}

// Catalog implements Store.
func (s *MySQLStore) Catalog() Catalog { return &CatalogRepo{db: s.db} }

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Seats() SeatRepository               { return &SeatRepo{tx: t.tx} }
func (t *sqlTx) Reservations() ReservationRepository { return &ReservationRepo{tx: t.tx} }
func (t *sqlTx) Payments() PaymentRepository         { return &PaymentRepo{tx: t.tx} }
func (t *sqlTx) Balances() BalanceRepository         { return &BalanceRepo{tx: t.tx} }

func lockContention(err error) error {
	if _, typed := apperr.As(err); typed {
		return err
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout) {
		return apperr.Wrap(apperr.Conflict, "concurrent-update", "row is locked by a concurrent request, try again", err)
	}
	return err
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// affectedOrConflict turns a zero-row conditional update into ErrVersionConflict.
func affectedOrConflict(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}
