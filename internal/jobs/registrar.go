package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/conveyor/internal/domain"
)

// UnitRegistrar регистрирует единицу выполнения и возвращает её ARN.
type UnitRegistrar interface {
	Register(ctx context.Context, unit domain.ExecutionUnit) (string, error)
}

// UnitHash — хэш содержимого единицы выполнения.
// encoding/json сортирует ключи map, так что хэш стабилен.
func UnitHash(unit domain.ExecutionUnit) (string, error) {
	data, err := json.Marshal(unit)
	if err != nil {
		return "", fmt.Errorf("marshal execution unit: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CachingRegistrar не регистрирует одинаковые единицы повторно:
// повторная сборка того же деплоя не создаёт новых ревизий.
type CachingRegistrar struct {
	next   UnitRegistrar
	logger *slog.Logger

	mu   sync.Mutex
	arns map[string]string
}

// NewCachingRegistrar оборачивает registrar кэшем по хэшу содержимого.
func NewCachingRegistrar(next UnitRegistrar, logger *slog.Logger) *CachingRegistrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingRegistrar{
		next:   next,
		logger: logger,
		arns:   make(map[string]string),
	}
}

// Register возвращает ARN из кэша или регистрирует единицу.
func (c *CachingRegistrar) Register(ctx context.Context, unit domain.ExecutionUnit) (string, error) {
	hash, err := UnitHash(unit)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if arn, ok := c.arns[hash]; ok {
		c.logger.Debug("execution unit reused", "family", unit.Family, "arn", arn)
		return arn, nil
	}

	arn, err := c.next.Register(ctx, unit)
	if err != nil {
		return "", err
	}
	c.arns[hash] = arn

	c.logger.Info("execution unit registered", "family", unit.Family, "arn", arn)
	return arn, nil
}

// Len возвращает количество закэшированных единиц.
func (c *CachingRegistrar) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.arns)
}

// DryRunRegistrar ничего не регистрирует и возвращает ARN-заглушку,
// детерминированную по содержимому. Используется офлайн-компиляцией.
type DryRunRegistrar struct {
	Region  string
	Account string
}

// Register возвращает ARN-заглушку.
func (d DryRunRegistrar) Register(_ context.Context, unit domain.ExecutionUnit) (string, error) {
	hash, err := UnitHash(unit)
	if err != nil {
		return "", err
	}

	region := d.Region
	if region == "" {
		region = "us-east-1"
	}
	account := d.Account
	if account == "" {
		account = "000000000000"
	}

	return fmt.Sprintf("arn:aws:ecs:%s:%s:task-definition/%s:dry-run-%s", region, account, unit.Family, hash[:12]), nil
}
