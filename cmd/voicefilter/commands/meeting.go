package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
	"github.com/haivivi/voicefilter/pkg/cli"
	"github.com/haivivi/voicefilter/pkg/jsontime"
	"github.com/haivivi/voicefilter/pkg/meeting"
	"github.com/haivivi/voicefilter/pkg/storage"
)

var meetingCmd = &cobra.Command{
	Use:   "meeting",
	Short: "Record meetings with speaker attribution",
}

var (
	meetingTitle     string
	meetingHosts     []string
	meetingAttendees []string
	meetingPlanFile  string
	meetingSession   string
	meetingNoText    bool
	meetingFormat    string
)

// endTimeout bounds the final save after the run is interrupted.
const endTimeout = 30 * time.Second

// meetingPlan is the file read by --from.
type meetingPlan struct {
	Title     string         `yaml:"title" json:"title"`
	Hosts     []planAttendee `yaml:"hosts" json:"hosts"`
	Attendees []planAttendee `yaml:"attendees" json:"attendees"`
	Calendar  *planCalendar  `yaml:"calendar" json:"calendar"`
}

type planAttendee struct {
	Name  string `yaml:"name" json:"name"`
	Title string `yaml:"title" json:"title"`
}

type planCalendar struct {
	EventID        string `yaml:"event_id" json:"event_id"`
	Provider       string `yaml:"provider" json:"provider"`
	ScheduledStart string `yaml:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd   string `yaml:"scheduled_end" json:"scheduled_end"`
	MeetingURL     string `yaml:"meeting_url" json:"meeting_url"`
}

func (c *planCalendar) link() (meeting.CalendarLink, error) {
	l := meeting.CalendarLink{EventID: c.EventID, Provider: c.Provider, MeetingURL: c.MeetingURL}
	for _, f := range []struct {
		in  string
		out **jsontime.Milli
	}{{c.ScheduledStart, &l.ScheduledStart}, {c.ScheduledEnd, &l.ScheduledEnd}} {
		if f.in == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, f.in)
		if err != nil {
			return l, fmt.Errorf("calendar: %w", err)
		}
		*f.out = jsontime.Ptr(t)
	}
	return l, nil
}

// parseAttendee splits "Name:Title".
func parseAttendee(s string) planAttendee {
	name, title, _ := strings.Cut(s, ":")
	return planAttendee{Name: strings.TrimSpace(name), Title: strings.TrimSpace(title)}
}

var meetingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Enroll attendees and record a meeting",
	Long: `Create (or resume) a meeting session, enroll every attendee who has
no voice sample yet, then record until Ctrl+C.

Hosts are marked enrolled without a sample. Each other attendee is asked to
read aloud until enough speech has been collected. At least two attendees
must be enrolled before recording starts.

While recording, send SIGUSR1 to pause or resume.

A plan file lists the roster and an optional calendar link:

  title: Weekly sync
  hosts:
    - name: Alice
      title: Lead
  attendees:
    - name: Bob
      title: Dev
  calendar:
    event_id: abc123
    provider: google
    scheduled_start: 2024-03-01T14:30:00Z

Examples:
  voicefilter meeting run --title "Weekly sync" --host "Alice:Lead" --attendee "Bob:Dev" --attendee "Carol:PM"
  voicefilter meeting run --from plan.yaml
  voicefilter meeting run --session 6f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		paths, err := getPaths(c)
		if err != nil {
			return err
		}
		store, err := openStore(c, paths)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		cfg := meetingConfig(c)
		view := newMeetingView()
		opts := []meeting.Option{
			meeting.WithLogger(slog.Default()),
			meeting.WithObserver(view.event),
			meeting.WithSource(func() (capture.Source, error) {
				return microphone(c, cfg.Format), nil
			}),
		}
		if !meetingNoText && c.OpenAI != nil && c.OpenAI.APIKey != "" {
			opts = append(opts, meeting.WithTranscriber(func() (meeting.Transcriber, error) {
				return transcriber(c, cfg.Format), nil
			}))
		} else {
			cfg.TranscriptionEnabled = false
		}
		opts = append(opts, meeting.WithConfig(cfg))

		s, err := openSession(ctx, store, opts)
		if err != nil {
			return err
		}
		cli.PrintInfo("Session %s (%s)", s.ID(), s.Dir())

		if err := enrollAll(ctx, s, view); err != nil {
			return err
		}
		if n := s.Data().EnrolledCount(); n < 2 {
			return fmt.Errorf("%d attendee(s) enrolled, need at least 2", n)
		}

		if err := s.StartMeeting(ctx); err != nil {
			return err
		}
		view.setLive(s.Data().Title)

		toggle := make(chan os.Signal, 1)
		signal.Notify(toggle, syscall.SIGUSR1)
		defer signal.Stop(toggle)

		ticker := time.NewTicker(redrawPeriod)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-toggle:
				if !s.PauseMeeting(ctx) {
					s.ResumeMeeting(ctx)
				}
			case <-ticker.C:
				view.redraw(s)
			}
		}

		endCtx, endCancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
		defer endCancel()
		exp, err := s.EndMeeting(endCtx)
		if exp != nil {
			printSummary(endCtx, s, exp)
		}
		return err
	},
}

// openSession loads --session or creates a new session from the flags or
// the plan file.
func openSession(ctx context.Context, store storage.FileStore, opts []meeting.Option) (*meeting.Session, error) {
	if meetingSession != "" {
		return meeting.Load(ctx, store, meetingSession, opts...)
	}

	var plan meetingPlan
	if meetingPlanFile != "" {
		if err := cli.LoadFile(meetingPlanFile, &plan); err != nil {
			return nil, err
		}
	}
	if meetingTitle != "" {
		plan.Title = meetingTitle
	}
	for _, h := range meetingHosts {
		plan.Hosts = append(plan.Hosts, parseAttendee(h))
	}
	for _, a := range meetingAttendees {
		plan.Attendees = append(plan.Attendees, parseAttendee(a))
	}
	if plan.Title == "" {
		plan.Title = "Meeting " + time.Now().Format("2006-01-02 15:04")
	}

	var (
		s   *meeting.Session
		err error
	)
	if plan.Calendar != nil {
		var link meeting.CalendarLink
		if link, err = plan.Calendar.link(); err != nil {
			return nil, err
		}
		s, err = meeting.FromCalendarEvent(ctx, store, meeting.CalendarEvent{Link: link, Title: plan.Title}, opts...)
	} else {
		s, err = meeting.New(ctx, store, plan.Title, opts...)
	}
	if err != nil {
		return nil, err
	}

	for _, h := range plan.Hosts {
		if _, err := s.AddAttendee(ctx, h.Name, h.Title, meeting.AsHost()); err != nil {
			return nil, err
		}
	}
	for _, a := range plan.Attendees {
		title := a.Title
		if title == "" {
			title = "Attendee"
		}
		if _, err := s.AddAttendee(ctx, a.Name, title); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// enrollAll enrolls every attendee without a sample, one at a time.
func enrollAll(ctx context.Context, s *meeting.Session, view *meetingView) error {
	for i, a := range s.Data().Attendees {
		if a.Enrolled() {
			continue
		}
		cli.PrintInfo("Enrolling %s (%s): please read aloud until the bar is full", a.Name, a.Title)
		done := view.expectEnrollment()
		if err := s.StartEnrollment(ctx, i); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			s.CancelEnrollment(context.WithoutCancel(ctx))
			return ctx.Err()
		case err := <-done:
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("enroll %s: %w", a.Name, err)
			}
			cli.PrintSuccess("Enrolled %s", a.Name)
		}
	}
	return nil
}

// meetingView collects session events for the live panel.
type meetingView struct {
	styles cli.Styles

	mu       sync.Mutex
	title    string
	live     bool
	level    float64
	speaker  *meeting.Attribution
	lines    []string
	notices  []string
	enrolled chan error
}

func newMeetingView() *meetingView {
	return &meetingView{styles: cli.NewStyles(cli.DefaultTheme)}
}

func (v *meetingView) expectEnrollment() <-chan error {
	ch := make(chan error, 1)
	v.mu.Lock()
	v.enrolled = ch
	v.mu.Unlock()
	return ch
}

func (v *meetingView) setLive(title string) {
	v.mu.Lock()
	v.title, v.live = title, true
	v.mu.Unlock()
}

func (v *meetingView) finishEnrollment(err error) {
	if v.enrolled != nil {
		v.enrolled <- err
		v.enrolled = nil
	}
}

// event is the session observer. It never blocks.
func (v *meetingView) event(e meeting.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch e.Kind {
	case meeting.EventEnrollmentProgress:
		p := e.Progress
		fmt.Fprintf(os.Stderr, "\r%s %s / %s", cli.Meter(p.Fraction(), 30),
			cli.FormatDuration(p.Collected), cli.FormatDuration(p.Required))
	case meeting.EventEnrollmentComplete:
		v.finishEnrollment(nil)
	case meeting.EventEnrollmentError:
		v.finishEnrollment(e.Err)
	case meeting.EventEnrollmentCancelled:
		v.finishEnrollment(errors.New("cancelled"))
	case meeting.EventVolumeLevel:
		v.level = e.Level
	case meeting.EventSpeakerChanged:
		a := *e.Attribution
		v.speaker = &a
	case meeting.EventTranscriptEntry:
		en := e.Entry
		v.lines = append(v.lines, fmt.Sprintf("[%s] %s: %s",
			en.Timestamp.Time().Local().Format("15:04:05"),
			v.styles.Speaker(en.SpeakerID, en.SpeakerName), en.Text))
	case meeting.EventMeetingPaused, meeting.EventMeetingResumed:
		v.notice(e.Kind.String())
	case meeting.EventTranscriptionError, meeting.EventError:
		v.notice(v.styles.Alert.Render(fmt.Sprintf("%s: %v", e.Kind, e.Err)))
	}
}

func (v *meetingView) notice(s string) {
	v.notices = append(v.notices, time.Now().Format("15:04:05")+" "+s)
	if len(v.notices) > 20 {
		v.notices = v.notices[len(v.notices)-20:]
	}
}

func (v *meetingView) redraw(s *meeting.Session) {
	d := s.Data()
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.live {
		return
	}

	speaker := "-"
	if v.speaker != nil {
		speaker = fmt.Sprintf("%s (%.2f)", v.styles.Speaker(v.speaker.SpeakerID, v.speaker.SpeakerName), v.speaker.Confidence)
	}
	var roster []string
	for _, a := range d.Attendees {
		roster = append(roster, v.styles.Speaker(a.ID, a.Name)+" "+v.styles.Help.Render(a.Title))
	}
	elapsed := time.Duration(0)
	if d.StartedAt != nil {
		elapsed = time.Since(d.StartedAt.Time()).Truncate(time.Second)
	}

	p := cli.Panel{
		Styles: v.styles,
		Title:  v.title,
		Status: fmt.Sprintf("%s %s", d.Status, cli.FormatDuration(elapsed)),
		Sections: []cli.Section{
			{Label: " Input ", Rows: 2, Lines: []string{
				fmt.Sprintf("level %s  speaker %s", cli.Meter(v.level, 30), speaker),
			}},
			{Label: " Attendees ", Lines: []string{strings.Join(roster, ", ")}},
			{Label: " Transcript ", Rows: 10, Lines: v.lines},
			{Label: " Log ", Rows: 3, Lines: v.notices},
		},
		Help: fmt.Sprintf("Ctrl+C to end, kill -USR1 %d to pause/resume", os.Getpid()),
	}
	fmt.Fprint(os.Stderr, "\033[H\033[2J"+p.Render(panelWidth)+"\n")
}

func printSummary(ctx context.Context, s *meeting.Session, exp *meeting.Export) {
	cli.PrintSuccess("Meeting %q ended", exp.Session.Title)
	fmt.Printf("  session:    %s\n", exp.Session.ID)
	fmt.Printf("  directory:  %s\n", s.Dir())
	fmt.Printf("  duration:   %s\n", cli.FormatDuration(exp.Duration.Duration()))
	fmt.Printf("  attendees:  %d\n", len(exp.Session.Attendees))
	fmt.Printf("  transcript: %d entries\n", len(exp.Transcript))
	fmt.Printf("  recording:  %s\n", recordingLine(ctx, s))
}

// recordingLine describes the session recording, e.g. "1.2 MB, 40.0s".
func recordingLine(ctx context.Context, s *meeting.Session) string {
	info, ok, err := s.Recording(ctx)
	switch {
	case err != nil:
		return "unreadable (" + err.Error() + ")"
	case !ok:
		return "none"
	}
	return fmt.Sprintf("%s, %s", cli.FormatBytes(info.Size), cli.FormatDuration(info.Duration))
}

var meetingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List meeting sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		list, err := meeting.List(cmd.Context(), store)
		if err != nil {
			return err
		}
		if outputJSON || outputFile != "" {
			return outputResult(list)
		}
		if len(list) == 0 {
			cli.PrintInfo("No meetings recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tATTENDEES\tSTARTED\tDURATION")
		for _, d := range list {
			started := "-"
			if d.StartedAt != nil {
				started = d.StartedAt.Time().Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				d.ID, d.Title, d.Status, len(d.Attendees), started, cli.FormatDuration(d.Duration()))
		}
		return w.Flush()
	},
}

var meetingShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the transcript of a session",
	Long: `Print the transcript of a session to stdout. The recording size and
length are reported on stderr.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		s, err := meeting.Load(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		out, err := s.ExportTranscript(meetingFormat)
		if err != nil {
			return err
		}
		if err := cli.Output(out, cli.OutputOptions{Format: cli.FormatRaw, File: outputFile}); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Recording: %s\n", recordingLine(cmd.Context(), s))
		return nil
	},
}

func sessionStore() (storage.FileStore, error) {
	c, err := getContext()
	if err != nil {
		return nil, err
	}
	paths, err := getPaths(c)
	if err != nil {
		return nil, err
	}
	return openStore(c, paths)
}

func init() {
	meetingRunCmd.Flags().StringVar(&meetingTitle, "title", "", "meeting title")
	meetingRunCmd.Flags().StringArrayVar(&meetingHosts, "host", nil, `host as "Name:Title", enrolled without a sample (repeatable)`)
	meetingRunCmd.Flags().StringArrayVar(&meetingAttendees, "attendee", nil, `attendee as "Name:Title" (repeatable)`)
	meetingRunCmd.Flags().StringVar(&meetingPlanFile, "from", "", "YAML or JSON plan file with the roster and calendar link")
	meetingRunCmd.Flags().StringVar(&meetingSession, "session", "", "resume an existing session instead of creating one")
	meetingRunCmd.Flags().BoolVar(&meetingNoText, "no-transcribe", false, "disable transcription")
	meetingRunCmd.MarkFlagsMutuallyExclusive("session", "from")

	meetingShowCmd.Flags().StringVarP(&meetingFormat, "format", "f", meeting.FormatText, "transcript format: txt, json or yaml")

	meetingCmd.AddCommand(meetingRunCmd)
	meetingCmd.AddCommand(meetingListCmd)
	meetingCmd.AddCommand(meetingShowCmd)
}
