// Command shadow_compare replays report API requests against the legacy Express service and this
// service and reports status or envelope differences.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// volatileKeys differ between two stores even for the same logical report.
var volatileKeys = []string{"id", "_id", "createdAt", "updatedAt", "assignedAt", "inProgressAt", "resolvedAt", "meta", "validationInfo"}

type target struct {
	Method   string          `json:"method"`
	Path     string          `json:"path"`
	Role     string          `json:"role"`
	Body     json.RawMessage `json:"body,omitempty"`
	Ignore   []string        `json:"ignore,omitempty"`
	Critical bool            `json:"critical"`
}

type targetFile struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Diff           []string
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

type tokenFlag map[string]string

func (t tokenFlag) String() string {
	roles := make([]string, 0, len(t))
	for role := range t {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return strings.Join(roles, ",")
}

func (t tokenFlag) Set(raw string) error {
	role, token, ok := strings.Cut(raw, "=")
	if !ok || role == "" || token == "" {
		return fmt.Errorf("expected role=token, got %q", raw)
	}
	t[role] = token
	return nil
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		timeout     time.Duration
	)
	tokens := tokenFlag{}

	flag.StringVar(&goBase, "go-base", "http://localhost:8080/api/v1", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:5000/api", "Legacy API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Var(tokens, "token", "role=bearer-token, repeatable (citizen, municipality_admin, field_staff, sys_admin)")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	comparisons := make([]comparison, 0, len(targets))
	var breaking, optionalDiff int

	for _, t := range targets {
		comp := compareTarget(client, goBase, legacyBase, tokens[t.Role], t)
		if comp.Error != nil || !comp.StatusMatch || !comp.BodyMatch {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(os.Stdout, comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

func compareTarget(client *http.Client, goBase, legacyBase, token string, tgt target) comparison {
	comp := comparison{Target: tgt}
	goStatus, goBody, goDur, goErr := performRequest(client, goBase, token, tgt)
	legacyStatus, legacyBody, legacyDur, legacyErr := performRequest(client, legacyBase, token, tgt)
	comp.DurationGo = goDur
	comp.DurationLegacy = legacyDur

	if goErr != nil {
		comp.Error = fmt.Errorf("go request failed: %w", goErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return comp
	}

	comp.GoStatus = goStatus
	comp.LegacyStatus = legacyStatus
	comp.StatusMatch = goStatus == legacyStatus
	comp.Diff = envelopeDiff(goBody, legacyBody, append(append([]string{}, volatileKeys...), tgt.Ignore...))
	comp.BodyMatch = len(comp.Diff) == 0
	return comp
}

func performRequest(client *http.Client, base, token string, tgt target) (int, []byte, time.Duration, error) {
	if client == nil {
		return 0, nil, 0, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if len(tgt.Body) > 0 {
		body = bytes.NewReader(tgt.Body)
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return 0, nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, payload, time.Since(start), nil
}

// envelopeDiff compares two response envelopes after dropping volatile keys at any depth.
// It returns the top-level envelope keys whose values differ.
func envelopeDiff(a, b []byte, ignore []string) []string {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return nil
	}
	var aj, bj map[string]interface{}
	if json.Unmarshal(a, &aj) != nil || json.Unmarshal(b, &bj) != nil {
		return []string{"<body>"}
	}
	skip := make(map[string]struct{}, len(ignore))
	for _, key := range ignore {
		skip[key] = struct{}{}
	}
	strip(aj, skip)
	strip(bj, skip)

	keys := make(map[string]struct{})
	for k := range aj {
		keys[k] = struct{}{}
	}
	for k := range bj {
		keys[k] = struct{}{}
	}
	var diff []string
	for k := range keys {
		if !reflect.DeepEqual(aj[k], bj[k]) {
			diff = append(diff, k)
		}
	}
	sort.Strings(diff)
	return diff
}

func strip(v interface{}, skip map[string]struct{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if _, ok := skip[k]; ok {
				delete(val, k)
				continue
			}
			strip(child, skip)
		}
	case []interface{}:
		for _, child := range val {
			strip(child, skip)
		}
	}
}

func printReport(w io.Writer, results []comparison) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESULT\tMETHOD\tPATH\tROLE\tGO\tLEGACY\tDIFF")
	for _, res := range results {
		result := "OK"
		detail := strings.Join(res.Diff, ",")
		switch {
		case res.Error != nil:
			result = "ERROR"
			detail = res.Error.Error()
		case !res.StatusMatch || !res.BodyMatch:
			result = "DIFF"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d (%s)\t%d (%s)\t%s\n",
			result, res.Target.Method, res.Target.Path, res.Target.Role,
			res.GoStatus, res.DurationGo.Round(time.Millisecond),
			res.LegacyStatus, res.DurationLegacy.Round(time.Millisecond),
			detail)
	}
	_ = tw.Flush()
}
