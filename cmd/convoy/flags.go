// ABOUTME: Flag parsing helpers for convoy subcommands
// ABOUTME: pflag sets plus NAME:LAT:LNG location values and date parsing

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/2389/convoy-coordinator/internal/store"
)

// errHelp means flag help was printed and the command should stop quietly.
var errHelp = errors.New("help requested")

func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	return fs
}

// parseFlags parses args into fs, mapping --help to errHelp.
func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

// parseLocation parses "NAME:LAT:LNG". The name may itself contain colons.
func parseLocation(s string) (store.Location, error) {
	lngSep := strings.LastIndex(s, ":")
	if lngSep < 0 {
		return store.Location{}, fmt.Errorf("location %q: want NAME:LAT:LNG", s)
	}
	latSep := strings.LastIndex(s[:lngSep], ":")
	if latSep < 0 {
		return store.Location{}, fmt.Errorf("location %q: want NAME:LAT:LNG", s)
	}

	name := strings.TrimSpace(s[:latSep])
	if name == "" {
		return store.Location{}, fmt.Errorf("location %q: name is empty", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(s[latSep+1:lngSep]), 64)
	if err != nil {
		return store.Location{}, fmt.Errorf("location %q: latitude: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(s[lngSep+1:]), 64)
	if err != nil {
		return store.Location{}, fmt.Errorf("location %q: longitude: %w", s, err)
	}
	return store.Location{Name: name, Lat: lat, Lng: lng}, nil
}

// locationValue is a pflag.Value for a single location.
type locationValue struct {
	loc *store.Location
}

func (v locationValue) String() string {
	if v.loc == nil || v.loc.Name == "" {
		return ""
	}
	return fmt.Sprintf("%s:%g:%g", v.loc.Name, v.loc.Lat, v.loc.Lng)
}

func (v locationValue) Set(s string) error {
	loc, err := parseLocation(s)
	if err != nil {
		return err
	}
	*v.loc = loc
	return nil
}

func (v locationValue) Type() string { return "location" }

// waypointsValue is a repeatable pflag.Value. Each occurrence appends a
// waypoint ordered after the previous ones.
type waypointsValue struct {
	wps *[]store.Waypoint
}

func (v waypointsValue) String() string {
	if v.wps == nil {
		return ""
	}
	parts := make([]string, 0, len(*v.wps))
	for _, wp := range *v.wps {
		parts = append(parts, fmt.Sprintf("%s:%g:%g", wp.Name, wp.Lat, wp.Lng))
	}
	return strings.Join(parts, ",")
}

func (v waypointsValue) Set(s string) error {
	loc, err := parseLocation(s)
	if err != nil {
		return err
	}
	*v.wps = append(*v.wps, store.Waypoint{
		Name:  loc.Name,
		Lat:   loc.Lat,
		Lng:   loc.Lng,
		Order: len(*v.wps) + 1,
	})
	return nil
}

func (v waypointsValue) Type() string { return "location" }

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDate accepts RFC 3339 or a local date with optional time of day.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD, YYYY-MM-DDTHH:MM or RFC 3339", s)
}
