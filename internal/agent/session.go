package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

const chunkChannelBuffer = 64

// inProgressFile is the file the mapper agent keeps rewriting with the
// current raw target-side content while a pass is in flight.
const inProgressFile = "mapping_in_progress.csv"

// Session is a running mapper agent process. It delivers raw stdout chunks
// exactly as read; record framing is the consumer's responsibility since a
// read boundary may split an event record anywhere.
type Session struct {
	ID        string
	Provider  string
	OutputDir string

	cmd    *exec.Cmd
	stdout io.ReadCloser
	log    *zap.Logger

	chunks   chan []byte
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	readErr error
}

// Launch starts the mapper agent for the given job. The job parameters are
// handed over as flags; the run output directory is created up front so the
// agent can write its in-progress snapshot there.
func Launch(ctx context.Context, spec ProviderSpec, job domain.JobSpec, runID, outputRoot string, log *zap.Logger) (*Session, error) {
	outputDir := filepath.Join(outputRoot, runID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domain.WrapEngineError(domain.ErrAgentLaunch.Code, "create output dir", err)
	}

	args := append(append([]string(nil), spec.Args...),
		"--source", job.SourceDataset,
		"--documents", job.DocumentsPath,
		"--max-iterations", strconv.Itoa(job.MaxIterations),
		"--output", outputDir,
	)
	if job.Model != "" {
		args = append(args, "--model", job.Model)
	}

	cmd := exec.CommandContext(ctx, spec.Command, args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, "OMCP_RUN_ID="+runID)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrAgentLaunch.Code, "stdout pipe", err)
	}

	s := &Session{
		ID:        runID,
		Provider:  spec.Name,
		OutputDir: outputDir,
		cmd:       cmd,
		stdout:    stdout,
		log:       log,
		chunks:    make(chan []byte, chunkChannelBuffer),
		done:      make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, domain.WrapEngineError(domain.ErrAgentLaunch.Code, fmt.Sprintf("start provider %s", spec.Name), err)
	}
	log.Info("mapper agent launched",
		zap.String("run_id", runID),
		zap.String("provider", spec.Name),
		zap.String("command", spec.Command))

	go s.readStdout()
	return s, nil
}

// Chunks returns a receive-only channel of raw stdout chunks. The channel
// is closed when the stream ends, after which Err reports any transport
// failure.
func (s *Session) Chunks() <-chan []byte {
	return s.chunks
}

// Done returns a channel that is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport failure that ended the stream, if any. Valid
// once Chunks is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Stop terminates the agent process. Wait is called after Kill to reclaim
// OS resources; its error is ignored since Kill already signals termination.
func (s *Session) Stop() error {
	if s.cmd.Process == nil {
		return nil
	}
	err := s.cmd.Process.Kill()
	_ = s.cmd.Wait()
	s.markDone()
	return err
}

// LiveSnapshot returns the current raw target-side content of the in-flight
// run, read from the agent's in-progress output file.
func (s *Session) LiveSnapshot() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.OutputDir, inProgressFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrSnapshotUnavailable
		}
		return "", fmt.Errorf("read live snapshot: %w", err)
	}
	return string(data), nil
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// readStdout forwards raw reads from the process stdout. On stream end it
// waits for the process and records a transport error if the agent exited
// abnormally without the reader having already failed.
func (s *Session) readStdout() {
	defer s.markDone()
	defer close(s.chunks)

	buf := make([]byte, 32*1024)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			s.chunks <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			if err != io.EOF {
				s.setErr(fmt.Errorf("read agent stdout: %w", err))
			}
			break
		}
	}

	if err := s.cmd.Wait(); err != nil {
		s.mu.Lock()
		if s.readErr == nil {
			s.readErr = fmt.Errorf("mapper agent exited: %w", err)
		}
		s.mu.Unlock()
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}
