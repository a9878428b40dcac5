package judge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hgu-oj/backend/internal/apperr"
)

// workerTimeout bounds the whole round-trip to a judge worker. The worker
// owns retry semantics internally; the dispatcher never retries failures,
// only the InvalidRequest schema fallback.
const workerTimeout = 30 * time.Second

// canonicalSeccompRule replaces structured seccomp_rule objects before
// forwarding; the worker's request schema only accepts string rules.
const canonicalSeccompRule = "c_cpp"

// WorkerScheduler is the dispatcher's view of the scheduler.
type WorkerScheduler interface {
	Acquire(ctx context.Context) (*Lease, error)
}

// LanguageSource resolves language configs and the judge token.
type LanguageSource interface {
	LanguageConfig(ctx context.Context, language string) (map[string]interface{}, error)
	JudgeServerToken(ctx context.Context) (string, error)
}

// RunRequest is one user-submitted execution.
type RunRequest struct {
	Language    string
	Source      string
	Stdin       string
	MaxCPUTime  int // milliseconds
	MaxMemoryMB int
}

// RunResult is the worker's response envelope, returned to the client
// verbatim. Worker-side failures are carried inside the envelope with a
// 200 at the HTTP layer, matching the existing wire contract.
type RunResult map[string]interface{}

func errorEnvelope(message string) RunResult {
	return RunResult{"err": true, "data": message}
}

// Dispatcher forwards execution requests to a leased judge worker.
type Dispatcher struct {
	scheduler    WorkerScheduler
	languages    LanguageSource
	client       *http.Client
	testCasePath string
}

func NewDispatcher(scheduler WorkerScheduler, languages LanguageSource, testCasePath string) *Dispatcher {
	return &Dispatcher{
		scheduler:    scheduler,
		languages:    languages,
		client:       &http.Client{Timeout: workerTimeout},
		testCasePath: testCasePath,
	}
}

// Run executes the submitted source on a judge worker.
//
// Flow: resolve + normalize the language config, hash the judge token,
// lease a worker, POST /run; on an InvalidRequest reply retry once with a
// minimal payload, then fall back to the emulated test-case /judge path.
// The lease is released on every exit, including caller cancellation —
// the in-flight worker call itself is never aborted by the caller's
// context, only by the total timeout.
func (d *Dispatcher) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	config, err := d.languages.LanguageConfig(ctx, req.Language)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, apperr.New(apperr.BadRequest, "wrong language option")
	}

	token, err := d.languages.JudgeServerToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperr.New(apperr.MisconfiguredService, "missing judge server token")
	}
	hashedToken := HashToken(token)

	config = normalizeLanguageConfig(config)

	lease, err := d.scheduler.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire judge server: %w", err)
	}
	if lease == nil {
		return errorEnvelope("No available judge server"), nil
	}

	// The worker call must complete (or hit its own timeout) even if the
	// request context is cancelled, otherwise the lease would leak.
	callCtx := context.WithoutCancel(ctx)
	defer lease.Release(callCtx)

	maxMemory := maxInt(1, req.MaxMemoryMB) * 1024 * 1024
	payload := map[string]interface{}{
		"language_config": config,
		"src":             req.Source,
		"max_cpu_time":    req.MaxCPUTime,
		"max_real_time":   maxInt(1, req.MaxCPUTime*3),
		"max_memory":      maxMemory,
		"input":           req.Stdin,
		"stdin":           req.Stdin,
		"output":          true,
	}

	result, err := d.post(callCtx, lease.ServiceURL+"/run", hashedToken, payload)
	if err != nil {
		return errorEnvelope(fmt.Sprintf("Judge server error: %v", err)), nil
	}
	if !isInvalidRequest(result) {
		return result, nil
	}

	// Some worker builds reject the extended schema; drop the `input`
	// field and try once more.
	slog.Warn("[Dispatcher] Worker rejected /run payload, retrying minimal",
		"worker_id", lease.ID)
	delete(payload, "input")
	result, err = d.post(callCtx, lease.ServiceURL+"/run", hashedToken, payload)
	if err != nil {
		return errorEnvelope(fmt.Sprintf("Judge server error: %v", err)), nil
	}
	if !isInvalidRequest(result) {
		return result, nil
	}

	slog.Warn("[Dispatcher] Worker only supports /judge, emulating test case",
		"worker_id", lease.ID)
	return d.runViaJudge(callCtx, lease.ServiceURL, hashedToken, config, req, maxMemory)
}

// runViaJudge synthesizes a single-case test bundle on the shared volume
// and posts to the worker's batch endpoint. The bundle directories are
// never cleaned by the dispatcher.
func (d *Dispatcher) runViaJudge(ctx context.Context, serviceURL, hashedToken string, config map[string]interface{}, req RunRequest, maxMemory int) (RunResult, error) {
	if d.testCasePath == "" {
		// Without the shared volume the worker cannot read the bundle;
		// writing locally would only mask the deployment error.
		return nil, apperr.New(apperr.MisconfiguredService, "TEST_CASE_DATA_PATH is not configured")
	}

	caseID, err := writeTestCaseBundle(d.testCasePath, req.Stdin)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"language_config": config,
		"src":             req.Source,
		"max_cpu_time":    req.MaxCPUTime,
		"max_memory":      maxMemory,
		"test_case_id":    caseID,
		"output":          true,
	}
	result, err := d.post(ctx, serviceURL+"/judge", hashedToken, payload)
	if err != nil {
		return errorEnvelope(fmt.Sprintf("Judge server error: %v", err)), nil
	}
	return result, nil
}

func (d *Dispatcher) post(ctx context.Context, url, hashedToken string, payload map[string]interface{}) (RunResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal worker payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Judge-Server-Token", hashedToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker returned status %d", resp.StatusCode)
	}

	var result RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode worker response: %w", err)
	}
	return result, nil
}

// isInvalidRequest reports whether the worker rejected the payload schema.
func isInvalidRequest(result RunResult) bool {
	errVal, ok := result["err"].(string)
	return ok && errVal == "InvalidRequest"
}

// HashToken derives the worker-side authentication header value:
// lowercase hex SHA-256 of the raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// normalizeLanguageConfig deep-copies the config and canonicalizes a
// structured run.seccomp_rule into the string form the worker accepts.
func normalizeLanguageConfig(config map[string]interface{}) map[string]interface{} {
	normalized := deepCopyMap(config)
	run, ok := normalized["run"].(map[string]interface{})
	if !ok {
		return normalized
	}
	if _, isObject := run["seccomp_rule"].(map[string]interface{}); isObject {
		run["seccomp_rule"] = canonicalSeccompRule
	}
	return normalized
}

func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		switch val := v.(type) {
		case map[string]interface{}:
			dst[k] = deepCopyMap(val)
		case []interface{}:
			copied := make([]interface{}, len(val))
			for i, item := range val {
				if m, ok := item.(map[string]interface{}); ok {
					copied[i] = deepCopyMap(m)
				} else {
					copied[i] = item
				}
			}
			dst[k] = copied
		default:
			dst[k] = v
		}
	}
	return dst
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
