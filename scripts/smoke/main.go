// Command smoke drives a running clinic-rota-api instance through the full
// run lifecycle: submit a roster, poll until the run finishes, fetch the
// result and download an artifact. Exits non-zero on the first failure.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type person struct {
	ID           string `json:"id"`
	Level        string `json:"level"`
	RotationUnit string `json:"rotation_unit"`
	HealthCheck  bool   `json:"health_check,omitempty"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type runPayload struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Progress  int     `json:"progress"`
	Reused    bool    `json:"reused"`
	Error     *string `json:"error"`
	Artifacts []struct {
		Kind     string `json:"kind"`
		Filename string `json:"filename"`
		URL      string `json:"url"`
	} `json:"artifacts"`
}

type step struct {
	Name     string
	Duration time.Duration
	Detail   string
	Err      error
}

func main() {
	var (
		base       string
		prefix     string
		rosterPath string
		timeout    time.Duration
		deadline   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&rosterPath, "roster", "", "Path to a JSON roster file (defaults to a built-in roster)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.DurationVar(&deadline, "deadline", 2*time.Minute, "Maximum time to wait for the run to finish")
	flag.Parse()

	roster, err := loadRoster(rosterPath)
	if err != nil {
		log.Fatalf("failed to load roster: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	base = strings.TrimRight(base, "/")
	api := base + prefix

	var steps []step

	steps = append(steps, checkHealth(client, base))

	submit, run := submitRun(client, api, roster)
	steps = append(steps, submit)

	if submit.Err == nil {
		waited, finished := waitForRun(client, api, run.ID, deadline)
		steps = append(steps, waited)
		steps = append(steps, fetchResult(client, api, run.ID))
		if waited.Err == nil {
			steps = append(steps, downloadArtifact(client, base, finished))
		}
	}

	failed := printReport(steps)
	if failed > 0 {
		os.Exit(1)
	}
}

func loadRoster(path string) ([]person, error) {
	if path == "" {
		return defaultRoster(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var roster []person
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("no personnel defined in %s", path)
	}
	return roster, nil
}

// defaultRoster matches the per-level counts the engine defaults are tuned
// for, with one health-unit R1 so the checkup stations get covered.
func defaultRoster() []person {
	return []person{
		{ID: "r1-01", Level: "R1", RotationUnit: "health", HealthCheck: true},
		{ID: "r1-02", Level: "R1", RotationUnit: "medicine-ward"},
		{ID: "r1-03", Level: "R1", RotationUnit: "emergency"},
		{ID: "r1-04", Level: "R1", RotationUnit: "pediatric-ward", HealthCheck: true},
		{ID: "r1-05", Level: "R1", RotationUnit: "psychiatry-1"},
		{ID: "r2-01", Level: "R2", RotationUnit: "obstetrics-clinic", HealthCheck: true},
		{ID: "r2-02", Level: "R2", RotationUnit: "medicine-ward"},
		{ID: "r2-03", Level: "R2", RotationUnit: "pediatrics-clinic", HealthCheck: true},
		{ID: "r2-04", Level: "R2", RotationUnit: "community-2"},
		{ID: "r2-05", Level: "R2", RotationUnit: "dermatology-clinic"},
		{ID: "r2-06", Level: "R2", RotationUnit: "neurology-clinic", HealthCheck: true},
		{ID: "r3-01", Level: "R3", RotationUnit: "chief-resident"},
		{ID: "r3-02", Level: "R3", RotationUnit: "satellite-1"},
		{ID: "r3-03", Level: "R3", RotationUnit: "medicine-clinic", HealthCheck: true},
		{ID: "r3-04", Level: "R3", RotationUnit: "palliative-2"},
		{ID: "r4-01", Level: "R4", RotationUnit: "sleep-clinic"},
		{ID: "r4-02", Level: "R4", RotationUnit: "travel-clinic"},
		{ID: "r4-03", Level: "R4", RotationUnit: "satellite-2"},
		{ID: "r4-04", Level: "R4", RotationUnit: "weight-clinic"},
		{ID: "r4-05", Level: "R4", RotationUnit: "pain-clinic"},
		{ID: "r4-06", Level: "R4", RotationUnit: "other"},
	}
}

func checkHealth(client *http.Client, base string) step {
	start := time.Now()
	resp, err := client.Get(base + "/health")
	if err != nil {
		return step{Name: "health", Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return step{Name: "health", Duration: time.Since(start), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return step{Name: "health", Duration: time.Since(start), Detail: "ok"}
}

func submitRun(client *http.Client, api string, roster []person) (step, runPayload) {
	start := time.Now()
	body, err := json.Marshal(map[string]interface{}{
		"personnel":  roster,
		"week_label": "smoke",
	})
	if err != nil {
		return step{Name: "submit", Duration: time.Since(start), Err: err}, runPayload{}
	}

	resp, err := client.Post(api+"/schedule/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		return step{Name: "submit", Duration: time.Since(start), Err: err}, runPayload{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return step{Name: "submit", Duration: time.Since(start), Err: fmt.Errorf("status %d: %s", resp.StatusCode, raw)}, runPayload{}
	}

	run, err := decodeRun(resp.Body)
	if err != nil {
		return step{Name: "submit", Duration: time.Since(start), Err: err}, runPayload{}
	}
	if run.ID == "" {
		return step{Name: "submit", Duration: time.Since(start), Err: fmt.Errorf("no run id in response")}, runPayload{}
	}

	detail := fmt.Sprintf("run %s (%s)", run.ID, run.Status)
	if run.Reused {
		detail += " reused"
	}
	return step{Name: "submit", Duration: time.Since(start), Detail: detail}, run
}

func waitForRun(client *http.Client, api, id string, deadline time.Duration) (step, runPayload) {
	start := time.Now()
	expires := start.Add(deadline)

	for {
		resp, err := client.Get(api + "/schedule/runs/" + id)
		if err != nil {
			return step{Name: "wait", Duration: time.Since(start), Err: err}, runPayload{}
		}
		run, decodeErr := decodeRun(resp.Body)
		resp.Body.Close()
		if decodeErr != nil {
			return step{Name: "wait", Duration: time.Since(start), Err: decodeErr}, runPayload{}
		}

		switch run.Status {
		case "FINISHED":
			detail := fmt.Sprintf("finished, %d artifacts", len(run.Artifacts))
			return step{Name: "wait", Duration: time.Since(start), Detail: detail}, run
		case "FAILED":
			cause := "unknown"
			if run.Error != nil {
				cause = *run.Error
			}
			return step{Name: "wait", Duration: time.Since(start), Err: fmt.Errorf("run failed: %s", cause)}, run
		}

		if time.Now().After(expires) {
			return step{Name: "wait", Duration: time.Since(start), Err: fmt.Errorf("run still %s after %s", run.Status, deadline)}, run
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func fetchResult(client *http.Client, api, id string) step {
	start := time.Now()
	resp, err := client.Get(api + "/schedule/runs/" + id + "/result")
	if err != nil {
		return step{Name: "result", Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return step{Name: "result", Duration: time.Since(start), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return step{Name: "result", Duration: time.Since(start), Err: err}
	}
	var payload struct {
		Result struct {
			Schedule map[string]json.RawMessage `json:"schedule"`
			Fitness  float64                    `json:"fitness"`
		} `json:"result"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return step{Name: "result", Duration: time.Since(start), Err: err}
	}
	if len(payload.Result.Schedule) == 0 {
		return step{Name: "result", Duration: time.Since(start), Err: fmt.Errorf("empty schedule in result")}
	}
	detail := fmt.Sprintf("%d grid days, fitness %.1f", len(payload.Result.Schedule), payload.Result.Fitness)
	return step{Name: "result", Duration: time.Since(start), Detail: detail}
}

func downloadArtifact(client *http.Client, base string, run runPayload) step {
	start := time.Now()
	if len(run.Artifacts) == 0 {
		return step{Name: "download", Duration: time.Since(start), Err: fmt.Errorf("finished run has no artifacts")}
	}

	artifact := run.Artifacts[0]
	url := artifact.URL
	if strings.HasPrefix(url, "/") {
		url = base + url
	}

	resp, err := client.Get(url)
	if err != nil {
		return step{Name: "download", Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return step{Name: "download", Duration: time.Since(start), Err: fmt.Errorf("unexpected status %d for %s", resp.StatusCode, artifact.Kind)}
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return step{Name: "download", Duration: time.Since(start), Err: err}
	}
	if n == 0 {
		return step{Name: "download", Duration: time.Since(start), Err: fmt.Errorf("empty artifact body for %s", artifact.Kind)}
	}
	return step{Name: "download", Duration: time.Since(start), Detail: fmt.Sprintf("%s, %d bytes", artifact.Filename, n)}
}

func decodeRun(body io.Reader) (runPayload, error) {
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return runPayload{}, err
	}
	var run runPayload
	if err := json.Unmarshal(env.Data, &run); err != nil {
		return runPayload{}, err
	}
	return run, nil
}

func printReport(steps []step) int {
	fmt.Println("Smoke Report")
	fmt.Println("============")
	failed := 0
	for _, s := range steps {
		status := "OK"
		if s.Err != nil {
			status = "FAIL"
			failed++
		}
		fmt.Printf("[%s] %s (%s)\n", status, s.Name, s.Duration)
		if s.Err != nil {
			fmt.Printf("  Error: %v\n", s.Err)
		} else if s.Detail != "" {
			fmt.Printf("  %s\n", s.Detail)
		}
	}
	return failed
}
