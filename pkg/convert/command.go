package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// InputPlaceholder is replaced by the input path in command templates.
const InputPlaceholder = "{input}"

// Command converts FASTA input by running an external program. The program
// receives the decompressed FASTA on stdin, or the input path through
// InputPlaceholder, and must write FASTQ to stdout. Output is gzip-compressed.
type Command struct {
	args   []string
	logger *zap.Logger
}

var _ Converter = (*Command)(nil)

// NewCommand parses a shell-style command template such as
// "perl scripts/fasta_to_fastq.pl {input}".
func NewCommand(template string, logger *zap.Logger) (*Command, error) {
	args, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("parse convert command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("convert command is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{args: args, logger: logger}, nil
}

// Args returns the command with placeholders substituted for inputPath.
func (c *Command) Args(inputPath string) []string {
	out := make([]string, len(c.args))
	for i, a := range c.args {
		out[i] = strings.ReplaceAll(a, InputPlaceholder, inputPath)
	}
	return out
}

func (c *Command) usesPlaceholder() bool {
	for _, a := range c.args {
		if strings.Contains(a, InputPlaceholder) {
			return true
		}
	}
	return false
}

// Convert implements Converter.
func (c *Command) Convert(ctx context.Context, inputPath string) (string, error) {
	output, needed, err := Plan(inputPath)
	if err != nil {
		return "", err
	}
	if !needed {
		return output, nil
	}

	args := c.Args(inputPath)
	var stdin io.ReadCloser
	if !c.usesPlaceholder() || Inspect(inputPath).Compression != CompressionNone {
		stdin, err = openDecompressed(inputPath)
		if err != nil {
			return "", job.NewError("convert", job.ErrStaging, err)
		}
		defer func() { _ = stdin.Close() }()
		// Compressed input is always streamed; the program cannot read it by path.
		if c.usesPlaceholder() {
			args = c.Args("-")
		}
	}

	var stderr bytes.Buffer
	err = writeGzipAtomic(output, func(w io.Writer) error {
		cmd := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204 -- command comes from operator config
		if stdin != nil {
			cmd.Stdin = stdin
		}
		cmd.Stdout = w
		cmd.Stderr = &stderr
		return cmd.Run()
	})
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", job.NewError("convert", job.ErrConversion, fmt.Errorf("%s: %w", args[0], err))
	}

	c.logger.Debug("Converted file with command",
		zap.Strings("args", args),
		zap.String("output", output))
	return output, nil
}
