// internal/app/groupinit/issuer.go
package groupinit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/dalemusser/groupvault/internal/app/store/audit"
	secretstore "github.com/dalemusser/groupvault/internal/app/store/bootstrapsecrets"
	"github.com/dalemusser/groupvault/internal/app/system/auditlog"
	"github.com/dalemusser/groupvault/internal/app/system/metrics"
	"github.com/dalemusser/groupvault/internal/app/system/ratelimit"
	"github.com/dalemusser/groupvault/internal/app/system/txn"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Outcome is the result of a Consume call.
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeAlreadyInitialized Outcome = "already_initialized"
	OutcomeInvalidToken       Outcome = "invalid_token"
)

// ErrRateLimited is returned before any token check when the group or user
// has made too many attempts.
var ErrRateLimited = errors.New("too many initialization attempts")

const secretBytes = 32

// SecretStore persists bootstrap secret hashes.
type SecretStore interface {
	Issue(ctx context.Context, scope string, hash []byte) (models.BootstrapSecret, error)
	Active(ctx context.Context, scope string) (models.BootstrapSecret, error)
	MarkConsumed(ctx context.Context, id primitive.ObjectID, groupID, userID int64) error
	Unconsume(ctx context.Context, id primitive.ObjectID) error
}

// RoleStore is where the first super_admin is written.
type RoleStore interface {
	HasAnyWithRole(ctx context.Context, groupID int64, role models.Role) (bool, error)
	Set(ctx context.Context, groupID, userID int64, role models.Role, grantedBy *int64) (models.Role, error)
}

// Issuer creates and consumes the one-time group initialization secret.
type Issuer struct {
	secrets SecretStore
	roles   RoleStore
	tx      txn.Runner
	limiter *ratelimit.InitLimiter
	metrics *metrics.Metrics
	audit   *auditlog.Logger
	log     *zap.Logger

	// Cost is the bcrypt cost; tests lower it.
	Cost int
}

// Deps groups Issuer's collaborators.
type Deps struct {
	Secrets SecretStore
	Roles   RoleStore
	Tx      txn.Runner
	Limiter *ratelimit.InitLimiter
	Metrics *metrics.Metrics
	Audit   *auditlog.Logger
	Log     *zap.Logger
}

func NewIssuer(d Deps) *Issuer {
	if d.Tx == nil {
		d.Tx = txn.Direct
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Issuer{
		secrets: d.Secrets,
		roles:   d.Roles,
		tx:      d.Tx,
		limiter: d.Limiter,
		metrics: d.Metrics,
		audit:   d.Audit,
		log:     d.Log,
		Cost:    bcrypt.DefaultCost,
	}
}

// Issue generates a new secret, supersedes any earlier unconsumed one and
// stores only its hash. The plaintext is only returned; the caller decides
// how to hand it to the operator.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), i.Cost)
	if err != nil {
		return "", err
	}
	if _, err := i.secrets.Issue(ctx, models.BootstrapScopeGlobal, hash); err != nil {
		return "", err
	}

	i.log.Info("group initialization secret issued")
	i.audit.SecretIssued(ctx)
	return token, nil
}

// Consume checks token and, if it matches the active secret and the group
// has no super_admin yet, marks the secret consumed and makes userID the
// group's super_admin as one unit.
//
// A consumed, superseded or mismatched token yields OutcomeInvalidToken
// with no side effect. When two callers race on a valid token only one
// compare-and-set succeeds; the loser also gets OutcomeInvalidToken.
func (i *Issuer) Consume(ctx context.Context, groupID, userID int64, token string) (Outcome, error) {
	if i.limiter != nil {
		if ok, reason := i.limiter.Check(groupID, userID); !ok {
			i.audit.InitRejected(ctx, groupID, userID, audit.EventInitRateLimited, reason)
			i.metrics.InitOutcome("rate_limited")
			return "", ErrRateLimited
		}
	}

	out, err := i.consume(ctx, groupID, userID, strings.TrimSpace(token))
	if err != nil {
		i.metrics.InitOutcome("error")
		return "", err
	}
	i.metrics.InitOutcome(string(out))

	switch out {
	case OutcomeOK:
		i.audit.GroupInitialized(ctx, groupID, userID)
		if i.limiter != nil {
			i.limiter.ResetUser(userID)
		}
	case OutcomeAlreadyInitialized:
		i.audit.InitRejected(ctx, groupID, userID, audit.EventInitAlreadyDone, string(out))
	default:
		i.audit.InitRejected(ctx, groupID, userID, audit.EventInitInvalidToken, string(out))
	}
	return out, nil
}

func (i *Issuer) consume(ctx context.Context, groupID, userID int64, token string) (Outcome, error) {
	if token == "" {
		return OutcomeInvalidToken, nil
	}

	sec, err := i.secrets.Active(ctx, models.BootstrapScopeGlobal)
	if errors.Is(err, secretstore.ErrNoActiveSecret) {
		return OutcomeInvalidToken, nil
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword(sec.SecretHash, []byte(token)) != nil {
		return OutcomeInvalidToken, nil
	}

	initialized, err := i.roles.HasAnyWithRole(ctx, groupID, models.RoleSuperAdmin)
	if err != nil {
		return "", err
	}
	if initialized {
		return OutcomeAlreadyInitialized, nil
	}

	var lost bool
	err = i.tx(ctx, func(ctx context.Context) error {
		lost = false
		if err := i.secrets.MarkConsumed(ctx, sec.ID, groupID, userID); err != nil {
			if errors.Is(err, secretstore.ErrNotClaimable) {
				lost = true
				return nil
			}
			return err
		}
		if _, err := i.roles.Set(ctx, groupID, userID, models.RoleSuperAdmin, nil); err != nil {
			// Without a transaction the consumed flag is already durable;
			// put the secret back so the operator's token still works.
			if uerr := i.secrets.Unconsume(ctx, sec.ID); uerr != nil {
				i.log.Error("bootstrap secret left consumed after failed role grant",
					zap.Int64("group_id", groupID),
					zap.Int64("user_id", userID),
					zap.Error(uerr))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if lost {
		return OutcomeInvalidToken, nil
	}

	i.log.Info("group initialized",
		zap.Int64("group_id", groupID),
		zap.Int64("super_admin", userID))
	return OutcomeOK, nil
}
