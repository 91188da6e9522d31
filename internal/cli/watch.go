package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/govem/govem/pkg/vm"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <classfile-or-class-name> [program args...]",
	Short: "Run a class's main method while watching heap and thread state live",
	Long: `watch starts the target program's main method on a background thread
and renders a live view of heap occupancy, GC cycle count, and
per-thread call-stack depth while it runs.`,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, programArgs := args[0], args[1:]

		vmi, _, err := buildVM(io.Discard, io.Discard)
		if err != nil {
			return err
		}
		jc, err := resolveMainClass(vmi, target)
		if err != nil {
			return err
		}

		m := newWatchModel(vmi, jc, programArgs)
		p := tea.NewProgram(m)
		_, err = p.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 200*time.Millisecond, "sample interval")
}

// watchTickMsg drives periodic heap/thread sampling.
type watchTickMsg time.Time

// watchDoneMsg reports that the watched program's main thread finished,
// carrying a non-nil unwind if it terminated via an uncaught exception.
type watchDoneMsg struct {
	unwind *vm.UnwindResult
	err    error
}

type watchModel struct {
	vmi  *vm.VM
	jc   *vm.JClass
	args []string

	width, height int
	done          bool
	result        watchDoneMsg

	bytesUsed, capacity, liveObjects, cycles int
	threadDepths                             []int

	heapBar progress.Model
}

func newWatchModel(vmi *vm.VM, jc *vm.JClass, args []string) *watchModel {
	return &watchModel{vmi: vmi, jc: jc, args: args, heapBar: progress.New(progress.WithDefaultGradient())}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.runProgram(), m.tick())
}

func (m *watchModel) runProgram() tea.Cmd {
	return func() tea.Msg {
		unwind, err := runMain(m.vmi, m.jc, m.args)
		return watchDoneMsg{unwind: unwind, err: err}
	}
}

func (m *watchModel) tick() tea.Cmd {
	return tea.Tick(watchInterval, func(t time.Time) tea.Msg { return watchTickMsg(t) })
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case watchTickMsg:
		m.sample()
		if m.done {
			return m, nil
		}
		return m, m.tick()

	case watchDoneMsg:
		m.done = true
		m.result = msg
		m.sample()
	}
	return m, nil
}

func (m *watchModel) sample() {
	m.bytesUsed, m.capacity, m.liveObjects, m.cycles = m.vmi.Heap.Stats()
	threads := m.vmi.Threads()
	m.threadDepths = m.threadDepths[:0]
	for _, t := range threads {
		m.threadDepths = append(m.threadDepths, t.FrameDepth())
	}
}

func (m *watchModel) View() string {
	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("govem watch: %s", m.jc.BinaryName))
	b.WriteString(title + "\n\n")

	pct := 0.0
	if m.capacity > 0 {
		pct = float64(m.bytesUsed) / float64(m.capacity)
	}
	b.WriteString(fmt.Sprintf("heap   %s %d/%d bytes (%d live objects)\n", m.heapBar.ViewAs(pct), m.bytesUsed, m.capacity, m.liveObjects))
	b.WriteString(fmt.Sprintf("GC cycles: %d\n\n", m.cycles))

	b.WriteString("threads:\n")
	for i, d := range m.threadDepths {
		b.WriteString(fmt.Sprintf("  [%d] frame depth %d\n", i, d))
	}

	if m.done {
		b.WriteString("\n")
		if m.result.err != nil {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#CC3333")).Render("host error: "+m.result.err.Error()) + "\n")
		} else if m.result.unwind != nil {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#CC3333")).Render("uncaught exception: "+m.result.unwind.ClassName()) + "\n")
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#228B22")).Render("program finished") + "\n")
		}
	}

	b.WriteString("\n(press q to quit)\n")
	return b.String()
}
