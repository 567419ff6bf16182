// Package mockcts provides a deterministic stand-in for the CTS: fixture
// data, an in-process client and an HTTP server answering the real routes.
package mockcts

import (
	"time"

	"github.com/kbase/cts-browser/pkg/types"
)

// FixtureUser owns every fixture job
const FixtureUser = "testuser"

// Fixtures is the data set served by the mock substrate
type Fixtures struct {
	Jobs      []types.Job
	Logs      map[string]map[int]map[types.LogStream]string
	ExitCodes map[string][]*int
	Sites     []types.Site
}

type step struct {
	state types.JobState
	ago   int // minutes before now
}

func transitions(now time.Time, steps ...step) []types.TransitionTime {
	out := make([]types.TransitionTime, 0, len(steps))
	for _, s := range steps {
		out = append(out, types.TransitionTime{
			State: s.state,
			Time:  now.Add(-time.Duration(s.ago) * time.Minute).UTC().Format(time.RFC3339),
		})
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func input(cluster, image string) *types.JobInput {
	return &types.JobInput{Cluster: cluster, Image: image, NumContainers: 1}
}

// NewFixtures builds the fixture set with timestamps relative to now
func NewFixtures(now time.Time) *Fixtures {
	const (
		running   = "job-a1b2c3d4-running-analysis"
		completed = "job-e5f6g7h8-completed-successfully"
		failed    = "job-i9j0k1l2-failed-with-error"
		canceled  = "job-h5i6j7k8-canceled"
	)

	jobs := []types.Job{
		{
			ID:              running,
			State:           types.JobStateJobSubmitted,
			User:            FixtureUser,
			InputFileCount:  5,
			Image:           &types.JobImage{Name: "kbase/analysis-tool", Tag: "v1.2.3", Entrypoint: []string{"/app/run.sh"}},
			JobInput:        &types.JobInput{Cluster: "perlmutter", Image: "kbase/analysis-tool:v1.2.3", NumContainers: 1, Params: map[string]any{"param1": "value1", "param2": 42}},
			CPUFactor:       ptr(1.0),
			MaxMemory:       "8Gi",
			TransitionTimes: transitions(now, step{types.JobStateCreated, 15}, step{types.JobStateDownloadSubmitted, 14}, step{types.JobStateJobSubmitting, 10}, step{types.JobStateJobSubmitted, 8}),
		},
		{
			ID:              completed,
			State:           types.JobStateComplete,
			User:            FixtureUser,
			InputFileCount:  3,
			OutputFileCount: 12,
			CPUHours:        ptr(2.45),
			Image:           &types.JobImage{Name: "kbase/genome-assembler", Tag: "v2.0.0", Digest: "sha256:abc123def456", Entrypoint: []string{"/usr/bin/assemble"}},
			JobInput:        input("perlmutter", "kbase/genome-assembler:v2.0.0"),
			Outputs: []types.JobOutput{
				{File: "assembly.fasta", Crc64Nvme: "abc123"},
				{File: "stats.json"},
				{File: "log.txt"},
			},
			Logpath: "/logs/job-e5f6g7h8/",
			TransitionTimes: transitions(now,
				step{types.JobStateCreated, 180}, step{types.JobStateDownloadSubmitted, 178},
				step{types.JobStateJobSubmitting, 175}, step{types.JobStateJobSubmitted, 170},
				step{types.JobStateUploadSubmitting, 65}, step{types.JobStateUploadSubmitted, 62},
				step{types.JobStateComplete, 60}),
		},
		{
			ID:             failed,
			State:          types.JobStateError,
			User:           FixtureUser,
			InputFileCount: 8,
			CPUHours:       ptr(0.12),
			Image:          &types.JobImage{Name: "kbase/memory-intensive", Tag: "latest"},
			JobInput:       input("lawrencium", "kbase/memory-intensive:latest"),
			Error:          "Container exited with non-zero status: OutOfMemoryError - Java heap space exceeded. Consider increasing memory allocation or reducing input size.",
			MaxMemory:      "4Gi",
			TransitionTimes: transitions(now,
				step{types.JobStateCreated, 240}, step{types.JobStateDownloadSubmitted, 238},
				step{types.JobStateJobSubmitting, 235}, step{types.JobStateJobSubmitted, 230},
				step{types.JobStateError, 220}),
		},
		{
			ID:              "job-m3n4o5p6-uploading-results",
			State:           types.JobStateUploadSubmitted,
			User:            FixtureUser,
			InputFileCount:  2,
			OutputFileCount: 47,
			CPUHours:        ptr(5.78),
			Image:           &types.JobImage{Name: "kbase/batch-processor", Tag: "v3.1.0"},
			JobInput:        input("kbase", "kbase/batch-processor:v3.1.0"),
			CPUFactor:       ptr(2.0),
			MaxMemory:       "16Gi",
			TransitionTimes: transitions(now,
				step{types.JobStateCreated, 400}, step{types.JobStateDownloadSubmitted, 398},
				step{types.JobStateJobSubmitting, 395}, step{types.JobStateJobSubmitted, 390},
				step{types.JobStateUploadSubmitting, 25}, step{types.JobStateUploadSubmitted, 22}),
		},
		{
			ID:              "job-q7r8s9t0-just-created",
			State:           types.JobStateCreated,
			User:            FixtureUser,
			InputFileCount:  1,
			Image:           &types.JobImage{Name: "kbase/quick-analysis", Tag: "v1.0.0"},
			JobInput:        input("perlmutter", "kbase/quick-analysis:v1.0.0"),
			TransitionTimes: transitions(now, step{types.JobStateCreated, 2}),
		},
		{
			ID:              "job-u1v2w3x4-downloading",
			State:           types.JobStateDownloadSubmitted,
			User:            FixtureUser,
			InputFileCount:  15,
			Image:           &types.JobImage{Name: "kbase/data-processor", Tag: "v2.5.0"},
			JobInput:        input("lawrencium", "kbase/data-processor:v2.5.0"),
			TransitionTimes: transitions(now, step{types.JobStateCreated, 5}, step{types.JobStateDownloadSubmitted, 4}),
		},
		{
			ID:              "job-y5z6a7b8-old-complete",
			State:           types.JobStateComplete,
			User:            FixtureUser,
			InputFileCount:  4,
			OutputFileCount: 8,
			CPUHours:        ptr(1.23),
			Image:           &types.JobImage{Name: "kbase/legacy-tool", Tag: "v0.9.0"},
			JobInput:        input("kbase", "kbase/legacy-tool:v0.9.0"),
			Outputs:         []types.JobOutput{{File: "result1.txt"}, {File: "result2.txt"}},
			TransitionTimes: transitions(now,
				step{types.JobStateCreated, 1500}, step{types.JobStateDownloadSubmitted, 1498},
				step{types.JobStateJobSubmitting, 1495}, step{types.JobStateJobSubmitted, 1490},
				step{types.JobStateUploadSubmitting, 1450}, step{types.JobStateUploadSubmitted, 1448},
				step{types.JobStateComplete, 1440}),
		},
		{
			ID:              "job-c9d0e1f2-error-processing",
			State:           types.JobStateErrorProcessingSubmitted,
			User:            FixtureUser,
			InputFileCount:  6,
			OutputFileCount: 3,
			CPUHours:        ptr(0.89),
			Image:           &types.JobImage{Name: "kbase/error-handler", Tag: "v1.1.0"},
			JobInput:        input("perlmutter", "kbase/error-handler:v1.1.0"),
			Error:           "Partial failure during output processing. Some results may be available.",
			TransitionTimes: transitions(now,
				step{types.JobStateCreated, 90}, step{types.JobStateDownloadSubmitted, 88},
				step{types.JobStateJobSubmitting, 85}, step{types.JobStateJobSubmitted, 80},
				step{types.JobStateErrorProcessingSubmitting, 35}, step{types.JobStateErrorProcessingSubmitted, 32}),
		},
		{
			ID:             "job-d1e2f3g4-canceling",
			State:          types.JobStateCanceling,
			User:           FixtureUser,
			InputFileCount: 10,
			CPUHours:       ptr(0.5),
			Image:          &types.JobImage{Name: "kbase/long-running", Tag: "v4.0.0"},
			JobInput:       input("lawrencium", "kbase/long-running:v4.0.0"),
			TransitionTimes: transitions(now,
				step{types.JobStateCreated, 60}, step{types.JobStateDownloadSubmitted, 58},
				step{types.JobStateJobSubmitting, 55}, step{types.JobStateJobSubmitted, 50},
				step{types.JobStateCanceling, 5}),
		},
		{
			ID:             canceled,
			State:          types.JobStateCanceled,
			User:           FixtureUser,
			InputFileCount: 7,
			CPUHours:       ptr(0.25),
			Image:          &types.JobImage{Name: "kbase/optional-analysis", Tag: "v2.0.0"},
			JobInput:       input("kbase", "kbase/optional-analysis:v2.0.0"),
			TransitionTimes: transitions(now,
				step{types.JobStateCreated, 120}, step{types.JobStateDownloadSubmitted, 118},
				step{types.JobStateJobSubmitting, 115}, step{types.JobStateJobSubmitted, 110},
				step{types.JobStateCanceling, 100}, step{types.JobStateCanceled, 95}),
		},
	}

	logs := map[string]map[int]map[types.LogStream]string{
		completed: {0: {
			types.LogStreamStdout: "[2024-01-15 10:30:00] Starting genome assembly...\n" +
				"[2024-01-15 10:30:01] Loading input files...\n" +
				"[2024-01-15 10:30:05] Input validation complete\n" +
				"[2024-01-15 10:30:10] Running assembly algorithm...\n" +
				"[2024-01-15 10:35:00] Assembly complete\n" +
				"[2024-01-15 10:35:01] Writing output files...\n" +
				"[2024-01-15 10:35:05] Job finished successfully",
			types.LogStreamStderr: "[WARN] Low memory detected, using conservative settings\n" +
				"[INFO] Using 4 threads for parallel processing",
		}},
		failed: {0: {
			types.LogStreamStdout: "[2024-01-15 08:00:00] Starting analysis...\n" +
				"[2024-01-15 08:00:01] Loading large dataset...\n" +
				"[2024-01-15 08:05:00] Processing batch 1 of 10...",
			types.LogStreamStderr: "[ERROR] OutOfMemoryError: Java heap space\n" +
				"[ERROR] at java.util.Arrays.copyOf(Arrays.java:3210)\n" +
				"[ERROR] at java.util.ArrayList.grow(ArrayList.java:265)\n" +
				"[ERROR] Job terminated due to memory exhaustion",
		}},
		running: {0: {
			types.LogStreamStdout: "[2024-01-15 12:00:00] Initializing analysis pipeline...\n" +
				"[2024-01-15 12:00:05] Downloading input data...\n" +
				"[2024-01-15 12:01:00] Starting main computation...",
			types.LogStreamStderr: "",
		}},
	}

	exitCodes := map[string][]*int{
		completed: {ptr(0)},
		failed:    {ptr(137)},
		canceled:  {ptr(143)},
	}

	sites := []types.Site{
		{
			Cluster:         "perlmutter",
			Nodes:           ptr(3072),
			CPUsPerNode:     128,
			MemoryPerNodeGB: 512,
			MaxRuntimeMin:   2880,
			Notes:           []string{"GPU nodes are not available to CTS jobs"},
			Active:          true,
			Available:       true,
		},
		{
			Cluster:           "lawrencium",
			Nodes:             ptr(400),
			CPUsPerNode:       56,
			MemoryPerNodeGB:   256,
			MaxRuntimeMin:     4320,
			Notes:             []string{},
			Active:            true,
			Available:         false,
			UnavailableReason: "Scheduled maintenance",
		},
		{
			Cluster:         "kbase",
			CPUsPerNode:     32,
			MemoryPerNodeGB: 128,
			MaxRuntimeMin:   1440,
			Notes:           []string{"Shared KBase compute pool"},
			Active:          true,
			Available:       true,
		},
	}

	return &Fixtures{Jobs: jobs, Logs: logs, ExitCodes: exitCodes, Sites: sites}
}
