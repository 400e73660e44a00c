package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/internal/repository"
)

var (
	ErrInvalidRecipient = fmt.Errorf("invalid recipient")
	ErrNotFound         = errors.New("message not found")
	ErrNotRetryable     = errors.New("only FAILED messages can be retried")
	ErrNotCancellable   = errors.New("only QUEUED messages can be cancelled")
)

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, bool, error)
	GetByID(ctx context.Context, orgID string, id int64) (*model.Message, error)
	ListByDossier(ctx context.Context, orgID string, dossierID int64) ([]*model.Message, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) // results, totalCount
	Retry(ctx context.Context, orgID string, id int64) (*model.Message, error)
	Cancel(ctx context.Context, orgID string, id int64) (bool, error)
}

type AttemptReader interface {
	ListByMessage(ctx context.Context, messageID int64) ([]*model.Attempt, error)
}

type MessageService struct {
	messageRepo        MessageRepository
	attemptRepo        AttemptReader
	defaultMaxAttempts int
}

func NewMessageService(messageRepo MessageRepository, attemptRepo AttemptReader, defaultMaxAttempts int) *MessageService {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = model.DefaultMaxAttempts
	}
	return &MessageService{
		messageRepo:        messageRepo,
		attemptRepo:        attemptRepo,
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// CreateResult reports whether the call created a new message or hit an
// earlier one through its idempotency key.
type CreateResult struct {
	Message *model.Message
	Created bool
}

func (s *MessageService) Create(ctx context.Context, p model.MessageCreateRequest) (*CreateResult, error) {
	p.To = strings.TrimSpace(p.To)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Channel != model.ChannelEmail && !strings.HasPrefix(p.To, "+") {
		return nil, ErrInvalidRecipient
	}

	// Callers that do not pass a key get a random one: the create is then
	// unique but replays of the same HTTP request are not collapsed.
	key := strings.TrimSpace(p.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.defaultMaxAttempts
	}

	m := &model.Message{
		OrgID:          p.OrgID,
		DossierID:      p.DossierID,
		Channel:        p.Channel,
		To:             p.To,
		TemplateCode:   p.TemplateCode,
		Subject:        p.Subject,
		Payload:        p.Payload,
		Status:         model.MessageStatusQueued,
		IdempotencyKey: key,
		MaxAttempts:    maxAttempts,
	}

	created, wasCreated, err := s.messageRepo.Create(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &CreateResult{Message: created, Created: wasCreated}, nil
}

func (s *MessageService) Get(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, orgID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return msg, err
}

// GetWithAttempts returns the message together with its full attempt history.
func (s *MessageService) GetWithAttempts(ctx context.Context, orgID string, id int64) (*model.Message, []*model.Attempt, error) {
	msg, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := s.attemptRepo.ListByMessage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return msg, attempts, nil
}

func (s *MessageService) ListByDossier(ctx context.Context, orgID string, dossierID int64) ([]*model.Message, error) {
	return s.messageRepo.ListByDossier(ctx, orgID, dossierID)
}

func (s *MessageService) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	return s.messageRepo.List(ctx, f)
}

// Retry re-queues a terminally failed message with a fresh attempt budget.
func (s *MessageService) Retry(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	msg, err := s.messageRepo.Retry(ctx, orgID, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, repository.ErrNotRetryable):
		return nil, ErrNotRetryable
	case err != nil:
		return nil, err
	}
	return msg, nil
}

// Cancel withdraws a message that has not been picked up yet.
func (s *MessageService) Cancel(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	ok, err := s.messageRepo.Cancel(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.Get(ctx, orgID, id); err != nil {
			return nil, err
		}
		return nil, ErrNotCancellable
	}
	return s.Get(ctx, orgID, id)
}
