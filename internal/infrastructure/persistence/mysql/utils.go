package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// MySQL错误码
const (
	mysqlErrLockWaitTimeout = 1205 // Lock wait timeout exceeded
	mysqlErrDeadlock        = 1213 // Deadlock found when trying to get lock
	mysqlErrDuplicateEntry  = 1062 // Duplicate entry 'xxx' for key 'yyy'
	mysqlErrOutOfRange      = 1264 // Out of range value for column
	mysqlErrValueOutOfRange = 1690 // BIGINT value is out of range
)

// isOutOfRangeError 数值越界（MySQL 1264/1690）
func isOutOfRangeError(err error) bool {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrOutOfRange || myErr.Number == mysqlErrValueOutOfRange
	}
	return false
}

// isDuplicateError 判断是否为唯一索引冲突错误
// MySQL错误码：
// - 1062: Duplicate entry 'xxx' for key 'yyy'
// SQLite: UNIQUE constraint failed
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	// GORM v2的错误判断（需要开启TranslateError）
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
		return true
	}
	// 兼容检查
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// isTransientError 判断是否为可重试的瞬时错误
// - 锁等待超时（1205）、死锁（1213）：事务已被回滚，整体重试即可
// - 连接中断
// - ctx超时/取消
// - SQLite写锁竞争（database is locked）
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, gomysql.ErrInvalidConn) {
		return true
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrLockWaitTimeout || myErr.Number == mysqlErrDeadlock
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// translateError 数据库错误 → 领域错误
// 已经是AppError的原样返回（事务回调中返回的业务错误）
func translateError(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return stock.ErrStockNotFound
	}
	if isDuplicateError(err) {
		return stock.ErrStockAlreadyExists.WithErr(err)
	}
	if isOutOfRangeError(err) {
		return stock.ErrQuantityTooLarge.WithErr(err)
	}
	if isTransientError(err) {
		return apperrors.Transient(err, message)
	}
	return apperrors.ErrDatabaseError.WithMessage(message).WithErr(err)
}
