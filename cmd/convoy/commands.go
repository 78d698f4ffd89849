// ABOUTME: Subcommand implementations for the convoy CLI
// ABOUTME: Each command drives one coordinator action or selector and prints the result

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/convoy-coordinator/internal/coordinator"
	"github.com/2389/convoy-coordinator/internal/registry"
	"github.com/2389/convoy-coordinator/internal/render"
	"github.com/2389/convoy-coordinator/internal/store"
)

const dateFormat = "Mon 02 Jan 2006 15:04"

var (
	bold   = color.New(color.Bold)
	cyan   = color.New(color.FgCyan)
	gray   = color.New(color.FgHiBlack)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
)

// expectArgs fails unless exactly n positional arguments were given.
func expectArgs(args []string, n int, names string) error {
	if len(args) != n {
		return fmt.Errorf("expected %s", names)
	}
	return nil
}

func runList(s *session, args []string) error {
	fs := newFlagSet("list", s.out)
	search := fs.StringP("search", "s", "", "only convoys whose title, description, route or tags contain this text")
	status := fs.String("status", "", "only convoys in this status (planned, active, completed, cancelled)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := expectArgs(fs.Args(), 0, "no arguments"); err != nil {
		return err
	}
	if *status != "" && !store.Status(*status).Valid() {
		return fmt.Errorf("unknown status %q: want planned, active, completed or cancelled", *status)
	}
	printConvoys(s, s.coord.SearchConvoys(*search, store.Status(*status)))
	return nil
}

func runMine(s *session, args []string) error {
	if err := expectArgs(args, 0, "no arguments"); err != nil {
		return err
	}
	if !s.coord.IsAuthenticated() {
		return errNotSignedIn
	}
	convoys := s.coord.UserConvoys()
	if len(convoys) == 0 {
		gray.Fprintln(s.out, "You are not part of any convoy yet.")
		return nil
	}
	printConvoys(s, convoys)
	return nil
}

func printConvoys(s *session, convoys []store.Convoy) {
	if len(convoys) == 0 {
		gray.Fprintln(s.out, "No convoys.")
		return
	}
	for _, c := range convoys {
		marker := "  "
		if s.coord.IsParticipant(c.ID) {
			marker = green.Sprint("★ ")
		}
		fmt.Fprintf(s.out, "%s%s  %s\n", marker, bold.Sprint(c.Title), gray.Sprint(c.ID))
		fmt.Fprintf(s.out, "    %s → %s  %s  %s\n",
			c.StartLocation.Name,
			c.Destination.Name,
			c.StartDate.Local().Format(dateFormat),
			seats(c),
		)
	}
}

// seats renders the roster size against capacity.
func seats(c store.Convoy) string {
	if c.MaxParticipants == nil {
		return fmt.Sprintf("%d riders", len(c.Participants))
	}
	return fmt.Sprintf("%d/%d riders", len(c.Participants), *c.MaxParticipants)
}

func runShow(s *session, args []string) error {
	if err := expectArgs(args, 1, "convoy ID"); err != nil {
		return err
	}
	c, ok := s.coord.Convoy(args[0])
	if !ok {
		return fmt.Errorf("convoy %s not found", args[0])
	}

	bold.Fprintln(s.out, c.Title)
	gray.Fprintf(s.out, "%s  [%s]\n\n", c.ID, c.Status)

	if c.Description != "" {
		fmt.Fprintln(s.out, c.Description)
		fmt.Fprintln(s.out)
	}

	fmt.Fprintf(s.out, "Start:     %s\n", c.StartDate.Local().Format(dateFormat))
	if c.EndDate != nil {
		fmt.Fprintf(s.out, "End:       %s\n", c.EndDate.Local().Format(dateFormat))
	}
	fmt.Fprintf(s.out, "Organizer: %s\n", c.OrganizerName)
	if len(c.Tags) > 0 {
		fmt.Fprintf(s.out, "Tags:      %s\n", strings.Join(c.Tags, ", "))
	}

	fmt.Fprintln(s.out)
	cyan.Fprintln(s.out, "Route")
	printStop(s.out, "●", c.StartLocation.Name, c.StartLocation.Lat, c.StartLocation.Lng)
	for _, wp := range c.SortedWaypoints() {
		printStop(s.out, "○", wp.Name, wp.Lat, wp.Lng)
	}
	printStop(s.out, "◆", c.Destination.Name, c.Destination.Lat, c.Destination.Lng)

	fmt.Fprintln(s.out)
	cyan.Fprintf(s.out, "Riders (%s)", seats(c))
	if left := render.Capacity(c); left != "" {
		yellow.Fprintf(s.out, "  %s", left)
	}
	fmt.Fprintln(s.out)
	for _, p := range c.Participants {
		fmt.Fprintf(s.out, "  %s %s", avatar(p.Avatar), p.Name)
		if p.IsOrganizer {
			green.Fprint(s.out, " (organizer)")
		}
		gray.Fprintf(s.out, "  joined %s\n", p.JoinedAt.Local().Format(dateFormat))
	}
	return nil
}

func printStop(w io.Writer, glyph, name string, lat, lng float64) {
	fmt.Fprintf(w, "  %s %s", glyph, name)
	gray.Fprintf(w, "  %.4f, %.4f\n", lat, lng)
}

func avatar(a string) string {
	if a == "" {
		return "·"
	}
	return a
}

func runCreate(ctx context.Context, s *session, args []string) error {
	fs := newFlagSet("create", s.out)
	title := fs.String("title", "", "convoy title")
	description := fs.String("description", "", "description (markdown)")
	start := fs.String("start", "", "start date, YYYY-MM-DD[THH:MM] (default now)")
	end := fs.String("end", "", "end date, YYYY-MM-DD[THH:MM]")
	var data registry.CreateData
	fs.Var(locationValue{&data.StartLocation}, "from", "start location NAME:LAT:LNG")
	fs.Var(locationValue{&data.Destination}, "to", "destination NAME:LAT:LNG")
	fs.Var(waypointsValue{&data.Waypoints}, "via", "waypoint NAME:LAT:LNG (repeatable)")
	maxRiders := fs.Int("max", 0, "maximum number of riders (default unbounded)")
	tags := fs.StringArray("tag", nil, "tag (repeatable)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	data.Title = *title
	data.Description = *description
	data.Tags = *tags
	if *start != "" {
		t, err := parseDate(*start, time.Local)
		if err != nil {
			return err
		}
		data.StartDate = t
	}
	if *end != "" {
		t, err := parseDate(*end, time.Local)
		if err != nil {
			return err
		}
		data.EndDate = &t
	}
	if fs.Changed("max") {
		data.MaxParticipants = maxRiders
	}

	c, err := s.coord.CreateConvoy(ctx, data)
	if errors.Is(err, coordinator.ErrUnauthenticated) {
		return errNotSignedIn
	}
	if err != nil {
		return err
	}

	green.Fprint(s.out, "Created ")
	fmt.Fprintf(s.out, "%s  %s\n", bold.Sprint(c.Title), gray.Sprint(c.ID))
	return nil
}

var errNotSignedIn = errors.New("not signed in (run: convoy login EMAIL PASSWORD)")

func runJoin(ctx context.Context, s *session, args []string) error {
	if err := expectArgs(args, 1, "convoy ID"); err != nil {
		return err
	}
	id := args[0]
	if !s.coord.JoinConvoy(ctx, id) {
		return fmt.Errorf("could not join %s: %s", id, joinDeclined(s, id))
	}
	c, _ := s.coord.Convoy(id)
	green.Fprint(s.out, "Joined ")
	fmt.Fprintln(s.out, c.Title)
	return nil
}

// joinDeclined explains why JoinConvoy said no.
func joinDeclined(s *session, id string) string {
	if !s.coord.IsAuthenticated() {
		return errNotSignedIn.Error()
	}
	c, ok := s.coord.Convoy(id)
	switch {
	case !ok:
		return "no such convoy"
	case s.coord.IsParticipant(id):
		return "already a rider"
	case c.Full():
		return "convoy is full"
	default:
		return "declined"
	}
}

func runLeave(ctx context.Context, s *session, args []string) error {
	if err := expectArgs(args, 1, "convoy ID"); err != nil {
		return err
	}
	id := args[0]
	wasRider := s.coord.IsParticipant(id)
	if !s.coord.LeaveConvoy(ctx, id) {
		return fmt.Errorf("could not leave %s: %s", id, leaveDeclined(s, id))
	}
	c, _ := s.coord.Convoy(id)
	if !wasRider {
		gray.Fprintf(s.out, "Not a rider of %s.\n", c.Title)
		return nil
	}
	green.Fprint(s.out, "Left ")
	fmt.Fprintln(s.out, c.Title)
	return nil
}

// leaveDeclined explains why LeaveConvoy said no.
func leaveDeclined(s *session, id string) string {
	identity, ok := s.coord.Identity()
	if !ok {
		return errNotSignedIn.Error()
	}
	c, found := s.coord.Convoy(id)
	switch {
	case !found:
		return "no such convoy"
	case c.OrganizerID == identity.ID:
		return "the organizer cannot leave"
	default:
		return "declined"
	}
}

func runChat(s *session, args []string) error {
	if err := expectArgs(args, 1, "convoy ID"); err != nil {
		return err
	}
	msgs := s.coord.Messages(args[0])
	if len(msgs) == 0 {
		gray.Fprintln(s.out, "No messages yet.")
		return nil
	}
	me, _ := s.coord.Identity()
	for _, m := range msgs {
		gray.Fprintf(s.out, "%s ", m.Timestamp.Local().Format("02.01. 15:04"))
		name := m.UserName
		if me.ID != "" && m.UserID == me.ID {
			name = green.Sprint(name)
		} else {
			name = cyan.Sprint(name)
		}
		fmt.Fprintf(s.out, "%s %s: %s\n", avatar(m.UserAvatar), name, m.Text)
	}
	return nil
}

func runSend(ctx context.Context, s *session, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("expected convoy ID and message text")
	}
	id, text := args[0], strings.Join(args[1:], " ")
	if !s.coord.IsAuthenticated() {
		return errNotSignedIn
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message is empty")
	}
	msg, ok := s.coord.SendMessage(ctx, id, text)
	if !ok {
		return fmt.Errorf("message not sent: %s", sendDeclined(s, id, text))
	}
	gray.Fprintf(s.out, "%s ", msg.Timestamp.Local().Format("02.01. 15:04"))
	fmt.Fprintf(s.out, "%s %s: %s\n", avatar(msg.UserAvatar), green.Sprint(msg.UserName), msg.Text)
	return nil
}

// sendDeclined explains why SendMessage said no once the signed-in and
// empty-text cases are ruled out.
func sendDeclined(s *session, id, text string) string {
	window := s.cfg.Chat.DuplicateWindow
	if window <= 0 {
		return "declined"
	}
	me, _ := s.coord.Identity()
	text = strings.TrimSpace(text)
	for _, m := range s.coord.Messages(id) {
		if m.UserID == me.ID && m.Text == text && time.Since(m.Timestamp) < window {
			return fmt.Sprintf("same text was sent less than %s ago", window)
		}
	}
	return "declined"
}

func runLogin(ctx context.Context, s *session, args []string) error {
	if err := expectArgs(args, 2, "EMAIL PASSWORD"); err != nil {
		return err
	}
	if !s.coord.Login(ctx, args[0], args[1]) {
		return fmt.Errorf("invalid e-mail or password")
	}
	return printIdentity(s)
}

func runRegister(ctx context.Context, s *session, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("expected EMAIL PASSWORD [NAME...]")
	}
	name := strings.Join(args[2:], " ")
	if !s.coord.Register(ctx, args[0], args[1], name) {
		return fmt.Errorf("registration failed: address taken, invalid or password too short")
	}
	return printIdentity(s)
}

func runLogout(ctx context.Context, s *session, args []string) error {
	if err := expectArgs(args, 0, "no arguments"); err != nil {
		return err
	}
	s.coord.Logout(ctx)
	gray.Fprintln(s.out, "Signed out.")
	return nil
}

func runWhoami(s *session, args []string) error {
	if err := expectArgs(args, 0, "no arguments"); err != nil {
		return err
	}
	if !s.coord.IsAuthenticated() {
		gray.Fprintln(s.out, "Not signed in.")
		return nil
	}
	return printIdentity(s)
}

func printIdentity(s *session) error {
	identity, ok := s.coord.Identity()
	if !ok {
		return errNotSignedIn
	}
	fmt.Fprintf(s.out, "%s %s", avatar(identity.Avatar), bold.Sprint(identity.Name))
	gray.Fprintf(s.out, "  %s  %s\n", identity.Email, identity.ID)
	return nil
}

func runExport(s *session, args []string) error {
	fs := newFlagSet("export", s.out)
	outPath := fs.String("out", "", "write HTML to this file instead of stdout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := expectArgs(fs.Args(), 1, "convoy ID"); err != nil {
		return err
	}
	id := fs.Arg(0)
	c, ok := s.coord.Convoy(id)
	if !ok {
		return fmt.Errorf("convoy %s not found", id)
	}
	card := render.Card{Convoy: c, Messages: s.coord.Messages(id)}

	if *outPath == "" {
		return render.New().Convoy(s.out, card)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *outPath, err)
	}
	if err := render.New().Convoy(f, card); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", *outPath, err)
	}
	green.Fprint(s.out, "Exported ")
	fmt.Fprintln(s.out, *outPath)
	return nil
}
