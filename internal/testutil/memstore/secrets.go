package memstore

import (
	"context"

	secretstore "github.com/dalemusser/groupvault/internal/app/store/bootstrapsecrets"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Secrets mirrors the bootstrap secret store.
type Secrets struct{ d *DB }

func (s *Secrets) Issue(_ context.Context, scope string, hash []byte) (models.BootstrapSecret, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for i := range s.d.secrets {
		if s.d.secrets[i].Scope == scope && !s.d.secrets[i].Consumed {
			s.d.secrets[i].Superseded = true
		}
	}
	sec := models.BootstrapSecret{ID: primitive.NewObjectID(), Scope: scope, SecretHash: hash, IssuedAt: s.d.now()}
	s.d.secrets = append(s.d.secrets, sec)
	return sec, nil
}

func (s *Secrets) Active(_ context.Context, scope string) (models.BootstrapSecret, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for i := len(s.d.secrets) - 1; i >= 0; i-- {
		sec := s.d.secrets[i]
		if sec.Scope == scope && !sec.Consumed && !sec.Superseded {
			return sec, nil
		}
	}
	return models.BootstrapSecret{}, secretstore.ErrNoActiveSecret
}

func (s *Secrets) MarkConsumed(_ context.Context, id primitive.ObjectID, groupID, userID int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for i := range s.d.secrets {
		sec := &s.d.secrets[i]
		if sec.ID == id && !sec.Consumed && !sec.Superseded {
			now := s.d.now()
			sec.Consumed, sec.ConsumedAt = true, &now
			sec.ConsumedByGroup, sec.ConsumedByUser = &groupID, &userID
			return nil
		}
	}
	return secretstore.ErrNotClaimable
}

func (s *Secrets) Unconsume(_ context.Context, id primitive.ObjectID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for i := range s.d.secrets {
		sec := &s.d.secrets[i]
		if sec.ID == id {
			sec.Consumed, sec.ConsumedAt = false, nil
			sec.ConsumedByGroup, sec.ConsumedByUser = nil, nil
		}
	}
	return nil
}
