package aws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"github.com/tobkre/flotilla/internal/util/retry"
)

// DefaultRoleName is the delegation role assumed in target accounts.
const DefaultRoleName = "OrganizationAccountAccessRole"

const sessionDuration = 1 * time.Hour

// CredentialContext is a temporary identity for one account. A zero
// token triple means the caller's own ambient identity (the same-account
// passthrough); such contexts never expire.
type CredentialContext struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiry          time.Time
}

// Ambient reports whether the context is a passthrough for the caller's
// own identity rather than delegated credentials.
func (c CredentialContext) Ambient() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == "" && c.SessionToken == ""
}

// Expired reports whether delegated credentials are past their expiry.
func (c CredentialContext) Expired(now time.Time) bool {
	return !c.Ambient() && !c.Expiry.IsZero() && now.After(c.Expiry)
}

// Env renders the context as environment variables for an external tool
// invocation. Ambient contexts render nothing so the subprocess inherits
// the default provider chain.
func (c CredentialContext) Env() []string {
	if c.Ambient() {
		return nil
	}
	return []string{
		"AWS_ACCESS_KEY_ID=" + c.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY=" + c.SecretAccessKey,
		"AWS_SESSION_TOKEN=" + c.SessionToken,
	}
}

// STSAPI is the subset of the STS client the broker uses.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Broker scopes operations to the correct account identity. It owns the
// "active credential" state: at most one context is active at a time,
// and every scope exit restores exactly what was active at entry.
//
// A broker is intended for a single chain of scopes. Parallel unit
// groups each get their own broker; credentials are always passed to
// external tools explicitly, never through the process environment.
type Broker struct {
	sts      STSAPI
	roleName string
	own      string

	mu    sync.Mutex
	stack []CredentialContext
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithRoleName overrides the delegation role assumed in target accounts.
func WithRoleName(name string) BrokerOption {
	return func(b *Broker) {
		b.roleName = name
	}
}

// NewBroker creates a broker and resolves the caller's own account.
func NewBroker(ctx context.Context, client STSAPI, opts ...BrokerOption) (*Broker, error) {
	b := &Broker{sts: client, roleName: DefaultRoleName}
	for _, opt := range opts {
		opt(b)
	}

	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	b.own = aws.ToString(out.Account)
	return b, nil
}

// OwnAccount returns the account the broker itself authenticates as.
func (b *Broker) OwnAccount() string {
	return b.own
}

// Assume obtains a credential context for the given account. When the
// account is the caller's own, no delegation call is made and the
// returned context is an ambient passthrough. Delegation failures are
// fatal: a broken trust relationship will not resolve by retrying.
func (b *Broker) Assume(ctx context.Context, accountID, sessionLabel string) (CredentialContext, error) {
	if accountID == b.own {
		return CredentialContext{AccountID: accountID}, nil
	}

	roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, b.roleName)
	sessionName := fmt.Sprintf("%s-%s", sessionLabel, uuid.NewString()[:8])

	out, err := b.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(int32(sessionDuration.Seconds())),
	})
	if err != nil {
		return CredentialContext{}, retry.Fatal(
			fmt.Errorf("failed to assume %s in account %s: %w", roleARN, accountID, err))
	}

	resolved := accountFromARN(aws.ToString(out.AssumedRoleUser.Arn))
	if resolved != accountID {
		return CredentialContext{}, retry.Fatal(
			fmt.Errorf("identity integrity violation: assumed %s but resolved account %q, wanted %q",
				roleARN, resolved, accountID))
	}

	creds := out.Credentials
	return CredentialContext{
		AccountID:       accountID,
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		Expiry:          aws.ToTime(creds.Expiration),
	}, nil
}

// WithScope runs fn with cctx as the active context, restoring the
// previously active context on both normal and error return.
func (b *Broker) WithScope(cctx CredentialContext, fn func() error) error {
	if cctx.AccountID == "" {
		return retry.Fatal(fmt.Errorf("refusing to enter scope with no account ID"))
	}
	if cctx.Expired(time.Now()) {
		return retry.Fatal(fmt.Errorf("credentials for account %s expired at %s", cctx.AccountID, cctx.Expiry))
	}

	b.push(cctx)
	defer b.pop()

	return fn()
}

// Active returns the currently active context, or the broker's own
// ambient identity when no scope is open.
func (b *Broker) Active() CredentialContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.stack) == 0 {
		return CredentialContext{AccountID: b.own}
	}
	return b.stack[len(b.stack)-1]
}

func (b *Broker) push(cctx CredentialContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stack = append(b.stack, cctx)
}

func (b *Broker) pop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stack = b.stack[:len(b.stack)-1]
}

// accountFromARN extracts the account ID from an ARN such as
// arn:aws:sts::111111111111:assumed-role/Role/session.
func accountFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 5 {
		return ""
	}
	return parts[4]
}
