package chat

import (
	"context"
	"fmt"
	"log/slog"

	"sojourn/backend/internal/rag"
)

const maxTitleLength = 80

type Classifier interface {
	Classify(ctx context.Context, question string) rag.QueryType
}

type Retriever interface {
	Retrieve(ctx context.Context, query, userID string, topK int) ([]rag.RetrievedChunk, error)
}

type Generator interface {
	Generate(ctx context.Context, question string, chunks []rag.RetrievedChunk) (*rag.GeneratedAnswer, error)
	StreamGenerate(ctx context.Context, question string, chunks []rag.RetrievedChunk) (<-chan rag.Event, error)
}

type Repo interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, userID, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	SaveMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, userID, sessionID string) ([]Message, error)
	TouchSession(ctx context.Context, sessionID string) error
}

// Service runs the question answering pipeline: classify, retrieve
// when the question depends on the user's documents, generate, then
// persist both turns.
type Service struct {
	classifier Classifier
	retriever  Retriever
	generator  Generator
	repo       Repo
}

func NewService(c Classifier, r Retriever, g Generator, repo Repo) *Service {
	return &Service{classifier: c, retriever: r, generator: g, repo: repo}
}

// Ask answers synchronously. A retrieval failure fails the whole
// request; answering from general knowledge while the user's documents
// are unreachable would be silently wrong.
func (s *Service) Ask(ctx context.Context, userID, sessionID, question string) (*AskResult, error) {
	session, err := s.resolveSession(ctx, userID, sessionID, question)
	if err != nil {
		return nil, err
	}

	queryType, chunks, err := s.classifyAndRetrieve(ctx, userID, question)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, question, chunks)
	if err != nil {
		return nil, err
	}

	if err := s.persistTurns(ctx, session, question, answer.Answer, queryType, answer.UsedContext, answer.Sources); err != nil {
		return nil, err
	}

	return &AskResult{
		SessionID:   session.ID,
		Answer:      answer.Answer,
		QueryType:   string(queryType),
		UsedContext: answer.UsedContext,
		Sources:     answer.Sources,
	}, nil
}

// AskStream answers token by token. Both turns are persisted only
// after the terminal done event; a cancelled or failed stream persists
// nothing.
func (s *Service) AskStream(ctx context.Context, userID, sessionID, question string) (*Session, <-chan rag.Event, error) {
	session, err := s.resolveSession(ctx, userID, sessionID, question)
	if err != nil {
		return nil, nil, err
	}

	queryType, chunks, err := s.classifyAndRetrieve(ctx, userID, question)
	if err != nil {
		return nil, nil, err
	}

	events, err := s.generator.StreamGenerate(ctx, question, chunks)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan rag.Event)
	go func() {
		defer close(out)

		var answer []byte
		for ev := range events {
			if ev.Type == rag.EventToken {
				answer = append(answer, ev.Content...)
			}
			if ev.Type == rag.EventDone {
				if err := s.persistTurns(ctx, session, question, string(answer), queryType, ev.UsedContext, ev.Sources); err != nil {
					slog.ErrorContext(ctx, "failed to persist chat turns", "error", err, "session_id", session.ID)
				}
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return session, out, nil
}

func (s *Service) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

func (s *Service) ListMessages(ctx context.Context, userID, sessionID string) ([]Message, error) {
	return s.repo.ListMessages(ctx, userID, sessionID)
}

func (s *Service) resolveSession(ctx context.Context, userID, sessionID, question string) (*Session, error) {
	if sessionID != "" {
		return s.repo.GetSession(ctx, userID, sessionID)
	}

	title := question
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	session := &Session{UserID: userID, Title: title}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return session, nil
}

func (s *Service) classifyAndRetrieve(ctx context.Context, userID, question string) (rag.QueryType, []rag.RetrievedChunk, error) {
	queryType := s.classifier.Classify(ctx, question)

	var chunks []rag.RetrievedChunk
	if rag.NeedsRetrieval(queryType) {
		var err error
		chunks, err = s.retriever.Retrieve(ctx, question, userID, 0)
		if err != nil {
			return queryType, nil, err
		}
	}
	return queryType, chunks, nil
}

func (s *Service) persistTurns(ctx context.Context, session *Session, question, answer string, queryType rag.QueryType, usedContext bool, sources []rag.SourceSnippet) error {
	userTurn := &Message{
		SessionID: session.ID,
		Role:      RoleUser,
		Content:   question,
	}
	if err := s.repo.SaveMessage(ctx, userTurn); err != nil {
		return fmt.Errorf("saving user turn: %w", err)
	}

	assistantTurn := &Message{
		SessionID:   session.ID,
		Role:        RoleAssistant,
		Content:     answer,
		QueryType:   string(queryType),
		UsedContext: usedContext,
		Sources:     sources,
	}
	if err := s.repo.SaveMessage(ctx, assistantTurn); err != nil {
		return fmt.Errorf("saving assistant turn: %w", err)
	}

	if err := s.repo.TouchSession(ctx, session.ID); err != nil {
		slog.WarnContext(ctx, "failed to touch session", "error", err, "session_id", session.ID)
	}
	return nil
}
