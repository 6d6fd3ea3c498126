package tonvote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tonkeeper/tongo/ton"
)

// retry options shared by all API calls
var (
	rtyAtt = retry.Attempts(3)
	rtyDel = retry.Delay(400 * time.Millisecond)
	rtyErr = retry.LastErrorOnly(true)
)

// Client is a read-only TON Vote API client.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewClient creates a new TON Vote API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay: 100 * time.Millisecond,
	}
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var data []byte

	err := retry.Do(func() error {
		c.throttle()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}

		data = body
		return nil
	}, retry.Context(ctx), rtyAtt, rtyDel, rtyErr, retry.DelayType(retry.BackOffDelay))

	return data, err
}

// GetDaos returns all registered DAOs.
func (c *Client) GetDaos(ctx context.Context) ([]Dao, error) {
	data, err := c.get(ctx, "/daos")
	if err != nil {
		return nil, err
	}

	var raw []daoResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	daos := make([]Dao, 0, len(raw))
	for _, r := range raw {
		daos = append(daos, daoFromResponse(&r))
	}
	return daos, nil
}

// GetDao returns a single DAO by address.
func (c *Client) GetDao(ctx context.Context, address string) (*Dao, error) {
	data, err := c.get(ctx, "/dao/"+address)
	if err != nil {
		return nil, err
	}

	var raw daoResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	dao := daoFromResponse(&raw)
	if dao.Address == "" {
		dao.Address = address
	}
	return &dao, nil
}

// GetProposal returns a single proposal by address. Result is nil
// while the upstream has not computed the final tally.
func (c *Client) GetProposal(ctx context.Context, address string) (*Proposal, error) {
	data, err := c.get(ctx, "/proposal/"+address)
	if err != nil {
		return nil, err
	}

	var raw proposalResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	p := &Proposal{
		Address:     address,
		DaoAddress:  raw.DaoAddress,
		Title:       localizedText(raw.Metadata.Title),
		Description: localizedText(raw.Metadata.Description),
		StartTime:   raw.Metadata.ProposalStartTime,
		EndTime:     raw.Metadata.ProposalEndTime,
	}
	if raw.ProposalResult != nil {
		p.Result = &VoteResult{
			Yes:     raw.ProposalResult.Yes,
			No:      raw.ProposalResult.No,
			Abstain: raw.ProposalResult.Abstain,
		}
	}
	return p, nil
}

func daoFromResponse(r *daoResponse) Dao {
	args := r.DaoMetadata.MetadataArgs
	return Dao{
		Address:   r.DaoAddress,
		Name:      localizedText(args.Name),
		About:     localizedText(args.About),
		Avatar:    args.Avatar,
		Website:   args.Website,
		Telegram:  args.Telegram,
		Github:    args.Github,
		Proposals: r.DaoProposals,
	}
}

// --- Address utilities ---

// NormalizeAddress converts any TON address format to raw (0:...).
// Returns an error when the input is not a TON address at all.
func NormalizeAddress(addr string) (string, error) {
	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", addr, err)
	}
	return acc.String(), nil
}

// FriendlyAddress converts an address to the user-facing EQ... form.
// Falls back to the input when it cannot be parsed.
func FriendlyAddress(addr string) string {
	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return addr
	}
	return acc.ToHuman(true, false)
}

// ShortAddr returns a shortened address for display.
func ShortAddr(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
