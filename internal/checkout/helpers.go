package checkout

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// orderNumber builds a human-readable unique order number. Uniqueness is
// ultimately enforced by the index on orders.order_number.
func orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("SF-%s-%s", now.UTC().Format("20060102"), suffix)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// sqlite phrasing, seen under the test driver.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
