package migration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	outboxdomain "github.com/smallbiznis/sitecraft/internal/outbox/domain"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func TestApplyAutoMigratesOutsidePostgres(t *testing.T) {
	dsn := fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, Apply(conn, zap.NewNop()))

	for _, table := range []string{"payments", "payment_events", "payment_outbox"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex(&paymentdomain.Payment{}, "ux_payments_razorpay_order_id"))
}

// MySQL refuses unique keys over TEXT and has no JSONB type.
func TestModelColumnsPortableAcrossDialects(t *testing.T) {
	models := []any{&paymentdomain.Payment{}, &paymentdomain.EventRecord{}, &outboxdomain.Message{}}
	cache := &sync.Map{}

	for _, model := range models {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)

		for _, field := range s.Fields {
			typ := strings.ToLower(field.TagSettings["TYPE"])
			assert.NotEqual(t, "jsonb", typ, "%s.%s", s.Table, field.DBName)

			_, indexed := field.TagSettings["INDEX"]
			_, unique := field.TagSettings["UNIQUEINDEX"]
			if indexed || unique {
				assert.NotEqual(t, "text", typ, "%s.%s is indexed", s.Table, field.DBName)
			}
		}
	}
}
