// Package faq serves the support knowledge base.
package faq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"quickcomm/internal/models"
)

const DefaultRefreshInterval = 10 * time.Minute

// Defaults are the entries a fresh store is seeded with.
var Defaults = []models.FAQ{
	{Question: "Do you ship internationally?", Answer: "Yes, we ship to most countries. Shipping costs vary depending on your location."},
	{Question: "What is your return policy?", Answer: "You can return unused items within 30 days for a full refund."},
	{Question: "When is customer support available?", Answer: "Our support team is available Monday to Friday, 9am to 6pm EST."},
	{Question: "How long does shipping take?", Answer: "Shipping usually takes between 5-7 business days depending on your location."},
	{Question: "Do you offer refunds for damaged items?", Answer: "Yes, please contact our support team with a photo of the damaged item for a full refund."},
}

type Service struct {
	db     *sql.DB
	driver string
	logger logrus.FieldLogger
}

func NewService(db *sql.DB, driver string, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{db: db, driver: strings.ToLower(driver), logger: logger.WithField("component", "faq")}
}

// List returns every FAQ ordered by id. A nil service lists nothing.
func (s *Service) List(ctx context.Context) ([]models.FAQ, error) {
	faqs := []models.FAQ{}
	if s == nil || s.db == nil {
		return faqs, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, question, answer, created_at FROM faqs ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f models.FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		faqs = append(faqs, f)
	}
	return faqs, rows.Err()
}

// Add stores one FAQ; a question that already exists is left unchanged and
// reported as not inserted.
func (s *Service) Add(ctx context.Context, question, answer string) (bool, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return false, errors.New("question and answer are required")
	}
	insert := `INSERT OR IGNORE INTO faqs (question, answer, created_at) VALUES (?, ?, ?)`
	if s.driver == "mysql" {
		insert = `INSERT IGNORE INTO faqs (question, answer, created_at) VALUES (?, ?, ?)`
	}
	res, err := s.db.ExecContext(ctx, insert, question, answer, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("add faq: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("faq rows affected: %w", err)
	}
	return n > 0, nil
}

// Seed inserts the default FAQs that are missing and returns how many were added.
func (s *Service) Seed(ctx context.Context) (int, error) {
	added := 0
	for _, f := range Defaults {
		ok, err := s.Add(ctx, f.Question, f.Answer)
		if err != nil {
			return added, fmt.Errorf("seed faqs: %w", err)
		}
		if ok {
			added++
		}
	}
	s.logger.WithField("added", added).Info("faq data seeded")
	return added, nil
}

// StartRefresher loads the FAQs into apply now and again on every tick until
// ctx is done.
func (s *Service) StartRefresher(ctx context.Context, interval time.Duration, apply func([]models.FAQ)) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	s.refresh(ctx, apply)
	go s.refreshLoop(ctx, interval, apply)
}

func (s *Service) refreshLoop(ctx context.Context, interval time.Duration, apply func([]models.FAQ)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx, apply)
		}
	}
}

func (s *Service) refresh(ctx context.Context, apply func([]models.FAQ)) {
	faqs, err := s.List(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("refresh faqs failed")
		return
	}
	apply(faqs)
	s.logger.WithField("count", len(faqs)).Debug("faqs refreshed")
}
