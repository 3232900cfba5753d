package state

import (
	"context"
	"database/sql"

	"github.com/fiffu/feedwatch/lib/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const saveBatchSize = 100

type tenantRow struct {
	ID            string `gorm:"primaryKey"`
	Position      int
	Platform      string
	Identifier    string
	LogPlatform   sql.NullString
	LogIdentifier sql.NullString
}

func (tenantRow) TableName() string { return "tenants" }

type subscriptionRow struct {
	TenantID  string `gorm:"primaryKey"`
	URL       string `gorm:"primaryKey"`
	Position  int
	Watermark sql.NullString
}

func (subscriptionRow) TableName() string { return "subscriptions" }

type keywordRow struct {
	TenantID string `gorm:"primaryKey"`
	Position int    `gorm:"primaryKey;autoIncrement:false"`
	Keyword  string
}

func (keywordRow) TableName() string { return "keywords" }

// SQLitePersister stores the document in three tables. Every save replaces
// the whole document in one transaction.
type SQLitePersister struct {
	db *gorm.DB
}

func NewSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tenantRow{}, &subscriptionRow{}, &keywordRow{}); err != nil {
		return nil, err
	}
	return &SQLitePersister{db}, nil
}

func (p *SQLitePersister) Load(ctx context.Context) (models.Tenants, error) {
	db := p.db.WithContext(ctx)

	var tenants []tenantRow
	if err := db.Order("position").Find(&tenants).Error; err != nil {
		return nil, err
	}
	var subs []subscriptionRow
	if err := db.Order("tenant_id, position").Find(&subs).Error; err != nil {
		return nil, err
	}
	var kws []keywordRow
	if err := db.Order("tenant_id, position").Find(&kws).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Tenant, len(tenants))
	out := make(models.Tenants, 0, len(tenants))
	for _, row := range tenants {
		t := &models.Tenant{
			ID:          row.ID,
			Destination: models.Destination{Platform: row.Platform, Identifier: row.Identifier},
		}
		if row.LogPlatform.Valid && row.LogIdentifier.Valid {
			t.LogDestination = &models.Destination{Platform: row.LogPlatform.String, Identifier: row.LogIdentifier.String}
		}
		byID[row.ID] = t
		out = append(out, t)
	}
	for _, row := range subs {
		if t, ok := byID[row.TenantID]; ok {
			t.Subscriptions = append(t.Subscriptions, models.Subscription{URL: row.URL, Watermark: row.Watermark})
		}
	}
	for _, row := range kws {
		if t, ok := byID[row.TenantID]; ok {
			t.Keywords = append(t.Keywords, row.Keyword)
		}
	}
	return out, nil
}

func (p *SQLitePersister) Save(ctx context.Context, tenants models.Tenants) error {
	var (
		tenantRows []tenantRow
		subRows    []subscriptionRow
		kwRows     []keywordRow
	)
	for i, t := range tenants {
		row := tenantRow{
			ID:         t.ID,
			Position:   i,
			Platform:   t.Destination.Platform,
			Identifier: t.Destination.Identifier,
		}
		if t.LogDestination != nil {
			row.LogPlatform = sql.NullString{String: t.LogDestination.Platform, Valid: true}
			row.LogIdentifier = sql.NullString{String: t.LogDestination.Identifier, Valid: true}
		}
		tenantRows = append(tenantRows, row)

		for j, sub := range t.Subscriptions {
			subRows = append(subRows, subscriptionRow{TenantID: t.ID, URL: sub.URL, Position: j, Watermark: sub.Watermark})
		}
		for j, kw := range t.Keywords {
			kwRows = append(kwRows, keywordRow{TenantID: t.ID, Position: j, Keyword: kw})
		}
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&keywordRow{}, &subscriptionRow{}, &tenantRow{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		if len(tenantRows) > 0 {
			if err := tx.CreateInBatches(&tenantRows, saveBatchSize).Error; err != nil {
				return err
			}
		}
		if len(subRows) > 0 {
			if err := tx.CreateInBatches(&subRows, saveBatchSize).Error; err != nil {
				return err
			}
		}
		if len(kwRows) > 0 {
			if err := tx.CreateInBatches(&kwRows, saveBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *SQLitePersister) Close() error {
	db, err := p.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
