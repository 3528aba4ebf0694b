package dbctx

import (
	"context"

	"gorm.io/gorm"

	"github.com/Siencmd/darkbroad/internal/pkg/ctxutil"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Conn returns the transaction when set, else fallback, bound to Ctx.
func (c Context) Conn(fallback *gorm.DB) *gorm.DB {
	tx := c.Tx
	if tx == nil {
		tx = fallback
	}
	return tx.WithContext(ctxutil.Default(c.Ctx))
}
