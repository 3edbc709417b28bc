package distillery

import (
	"bufio"
	"os"

	"github.com/soundprediction/distillery/pkg/artifact"
)

// ArtifactInfo describes one artifact's presence and row count.
type ArtifactInfo struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Rows   int    `json:"rows"`
}

// Status is a snapshot of the pipeline's progress, served by the status API.
type Status struct {
	WorkingDir string         `json:"working_dir"`
	RunID      string         `json:"run_id,omitempty"`
	NextStage  Stage          `json:"next_stage"`
	Artifacts  []ArtifactInfo `json:"artifacts"`
	Checkpoint ArtifactInfo   `json:"checkpoint"`
}

// Status inspects the working directory and reports which artifacts exist,
// how many rows each holds, and what stage a run would execute next.
func (c *Client) Status() Status {
	prefix := c.cfg.Pipeline.Prefix
	names := []string{
		artifact.CorpusFile,
		artifact.QueriesFile(prefix),
		artifact.QrelsFile(prefix),
		artifact.HardNegativesFile,
		artifact.TrainingDataFile,
	}

	infos := make([]ArtifactInfo, 0, len(names))
	for _, name := range names {
		info := ArtifactInfo{Name: name, Exists: c.store.Exists(name)}
		if info.Exists {
			if path, err := c.store.Path(name); err == nil {
				info.Rows = countLines(path)
			}
		}
		infos = append(infos, info)
	}

	return Status{
		WorkingDir: c.store.Dir(),
		RunID:      c.recorder.RunID(),
		NextStage:  c.NextStage(),
		Artifacts:  infos,
		Checkpoint: ArtifactInfo{
			Name:   artifact.CheckpointDir(c.cfg.Student.OutputDir, c.cfg.Pipeline.Steps),
			Exists: artifact.CheckpointExists(c.cfg.Student.OutputDir, c.cfg.Pipeline.Steps),
		},
	}
}

// countLines counts non-empty lines; a best-effort metric, 0 on error.
func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	return n
}
