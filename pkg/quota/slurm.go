package quota

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
)

// SlurmProvider reads account-association resource limits from the
// Slurm REST API (v0.0.40). Slurm enforces association limits at
// submission time, so Reserve and Release are no-ops; the provider's
// job is the read-only GetQuota/Check projection.
type SlurmProvider struct {
	baseURL       string
	userName      string
	userToken     string
	accountPrefix string
	httpClient    *http.Client
}

// NewSlurmProvider returns a Provider reading association limits from
// the Slurm REST API at baseURL, authenticating as userName with
// userToken. accountPrefix is prepended to the project ID to form the
// Slurm account name (matching the original scheduler's "project-"
// convention).
func NewSlurmProvider(baseURL, userName, userToken, accountPrefix string) *SlurmProvider {
	return &SlurmProvider{
		baseURL:       baseURL,
		userName:      userName,
		userToken:     userToken,
		accountPrefix: accountPrefix,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *SlurmProvider) account(projectID string) string {
	return p.accountPrefix + projectID
}

type slurmAccountsResponse struct {
	Accounts []slurmAccount `json:"accounts"`
}

type slurmAccount struct {
	Name    string `json:"name"`
	GrpTRES string `json:"grp_tres"`
}

func (p *SlurmProvider) GetQuota(projectID string) (*Snapshot, error) {
	endpoint, err := url.JoinPath(p.baseURL, "slurm/v0.0.40/accounts", p.account(projectID))
	if err != nil {
		return nil, fmt.Errorf("quota: build slurm accounts url: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("quota: build slurm accounts request: %w", err)
	}
	req.Header.Set("X-SLURM-USER-NAME", p.userName)
	req.Header.Set("X-SLURM-USER-TOKEN", p.userToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quota: slurm accounts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quota: slurm accounts request: unexpected status %d", resp.StatusCode)
	}

	var parsed slurmAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("quota: decode slurm accounts response: %w", err)
	}
	if len(parsed.Accounts) == 0 {
		return nil, nil
	}

	limits, err := resources.ParseTRES(parsed.Accounts[0].GrpTRES)
	if err != nil {
		return nil, fmt.Errorf("quota: parse slurm grp_tres: %w", err)
	}

	return &Snapshot{Limits: limits}, nil
}

// Check verifies the account association exists; Slurm itself
// enforces the resource limits at job submission.
func (p *SlurmProvider) Check(projectID string, request resources.Resources, jobType types.JobType) (bool, error) {
	snap, err := p.GetQuota(projectID)
	if err != nil {
		return false, err
	}
	return snap != nil, nil
}

func (p *SlurmProvider) Reserve(projectID string, request resources.Resources, jobType types.JobType) (bool, error) {
	return true, nil
}

func (p *SlurmProvider) Release(projectID string, request resources.Resources, jobType types.JobType) error {
	return nil
}

func (p *SlurmProvider) Sync() error { return nil }
