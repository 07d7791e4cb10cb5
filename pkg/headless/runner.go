package headless

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/controllers"
	"github.com/quillchat/quill/pkg/streaming"
)

// Runner drives a Coordinator from the terminal: a single prompt in one-shot
// mode, or an interactive loop with /pause, /reset and /quit commands.
type Runner struct {
	coordinator  *controllers.Coordinator
	output       *Output
	showThinking bool
}

func NewRunner(coordinator *controllers.Coordinator, output *Output, showThinking bool) *Runner {
	return &Runner{
		coordinator:  coordinator,
		output:       output,
		showThinking: showThinking,
	}
}

// OnChunk mirrors accepted chunks to the console. Register it with the
// coordinator via controllers.WithChunkObserver.
func (r *Runner) OnChunk(c streaming.Chunk) {
	switch c.Kind {
	case streaming.ThinkingDelta:
		if r.showThinking {
			r.output.Thinking(c.Text)
		}
	case streaming.ThinkingComplete:
		if r.showThinking {
			r.output.Newline()
			r.output.Status(fmt.Sprintf("(thought for %dms)", c.ElapsedMS))
		}
	case streaming.TextDelta:
		r.output.Text(c.Text)
	case streaming.BlockComplete:
		r.output.Newline()
	case streaming.ChunkError:
		r.output.Newline()
		if c.Cancelled {
			r.output.Status("(paused)")
		} else if c.Err != nil {
			r.output.Error(c.Err.Error())
		}
	}
}

// Run executes a single prompt and waits for it to settle.
func (r *Runner) Run(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt cannot be empty in headless mode")
	}

	if r.coordinator.Topic().ID == "" {
		if err := r.coordinator.BindTopic(chat.NewTopic("")); err != nil {
			return err
		}
	}

	r.coordinator.SendMessage(prompt, "")
	r.coordinator.Wait()

	if msg := r.coordinator.Err(); msg != "" {
		return fmt.Errorf("generation failed: %s", msg)
	}
	return nil
}

// RunInteractive reads prompts from stdin until EOF or /quit.
func (r *Runner) RunInteractive() error {
	if r.coordinator.Topic().ID == "" {
		if err := r.coordinator.BindTopic(chat.NewTopic("")); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/pause":
			r.coordinator.Pause()
			continue
		case "/reset":
			if err := r.coordinator.Reset(); err != nil {
				r.output.Error(err.Error())
			} else {
				r.output.Status("(conversation cleared)")
			}
			continue
		}

		r.coordinator.SendMessage(line, "")
		r.coordinator.Wait()
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("input error: %w", err)
	}
	return nil
}
