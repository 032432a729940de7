// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a MongoDB multi-document transaction.
//
// Standalone servers (common in development) cannot run transactions. When
// the server reports that, Run logs once per call and executes fn without a
// session; callers that need ordering guarantees in that mode must order
// their writes so a partial run is safe to leave behind or compensate.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	sess, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			warnFallback(log, err)
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		warnFallback(log, err)
		return fn(ctx)
	}
	return err
}

func warnFallback(log *zap.Logger, err error) {
	if log == nil {
		return
	}
	log.Warn("transactions unsupported; running without a transaction", zap.Error(err))
}

// IsNotSupported reports whether err says the deployment cannot run
// transactions (standalone mongod, some DocumentDB versions).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}
	s := strings.ToLower(err.Error())
	hasTxn := strings.Contains(s, "transaction")
	hasSession := strings.Contains(s, "session")
	switch {
	case hasTxn && (hasSession || strings.Contains(s, "replica set") || strings.Contains(s, "illegal operation")):
		return true
	case hasSession && strings.Contains(s, "not supported"):
		return true
	}
	return false
}

// Runner runs fn as one unit of work. Services take a Runner instead of a
// database handle so tests can substitute Direct.
type Runner func(ctx context.Context, fn func(ctx context.Context) error) error

// For returns a Runner that calls Run against db.
func For(db *mongo.Database, log *zap.Logger) Runner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return Run(ctx, db, log, fn)
	}
}

// Direct runs fn without a transaction.
func Direct(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
