// Package execdriver implements [domain.MemberDriver] by running
// configurable commands, typically over a remote shell or a process
// manager wrapper. Command arguments support placeholder expansion from
// the release version and the member's registered metadata.
package execdriver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Commands holds the argv for each driver operation. Each argument may
// contain the placeholders {version}, {member.id}, {member.name}, and
// {prop.<key>} for member properties.
type Commands struct {
	// Stop halts the running service.
	Stop []string
	// Install materializes {version} on the member.
	Install []string
	// Start launches the installed service.
	Start []string
	// IsLive reports liveness through its exit code: zero means live.
	IsLive []string
	// Diagnostics prints a status snapshot and recent logs to stdout.
	Diagnostics []string
}

// Provider implements [domain.DriverProvider] for command-based drivers.
type Provider struct {
	Commands Commands
	Log      logrus.FieldLogger
}

func (p *Provider) DriverFor(member domain.MemberInfo) (domain.MemberDriver, error) {
	if len(p.Commands.Stop) == 0 || len(p.Commands.Install) == 0 || len(p.Commands.Start) == 0 || len(p.Commands.IsLive) == 0 {
		return nil, fmt.Errorf("%w: driver commands incomplete", domain.ErrInvalidArgument)
	}
	return &driver{commands: p.Commands, member: member, log: p.log()}, nil
}

func (p *Provider) log() logrus.FieldLogger {
	if p.Log != nil {
		return p.Log
	}
	return logrus.StandardLogger()
}

type driver struct {
	commands Commands
	member   domain.MemberInfo
	log      logrus.FieldLogger
}

func (d *driver) Stop(ctx context.Context) error {
	_, err := d.run(ctx, d.commands.Stop, "")
	return err
}

func (d *driver) Install(ctx context.Context, version string) error {
	_, err := d.run(ctx, d.commands.Install, version)
	return err
}

func (d *driver) Start(ctx context.Context) error {
	_, err := d.run(ctx, d.commands.Start, "")
	return err
}

func (d *driver) IsLive(ctx context.Context) (bool, error) {
	if _, err := d.run(ctx, d.commands.IsLive, ""); err != nil {
		return false, nil
	}
	return true, nil
}

func (d *driver) Diagnostics(ctx context.Context) string {
	if len(d.commands.Diagnostics) == 0 {
		return ""
	}
	out, err := d.run(ctx, d.commands.Diagnostics, "")
	if err != nil {
		return fmt.Sprintf("diagnostics unavailable: %v", err)
	}
	return strings.TrimSpace(out)
}

func (d *driver) run(ctx context.Context, argv []string, version string) (string, error) {
	expanded := d.expand(argv, version)
	cmd := exec.CommandContext(ctx, expanded[0], expanded[1:]...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	d.log.WithFields(logrus.Fields{
		"member":  d.member.ID,
		"command": expanded[0],
	}).Debug("running driver command")

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(buf.String())
		if msg != "" {
			return buf.String(), fmt.Errorf("%s: %w: %s", expanded[0], err, msg)
		}
		return buf.String(), fmt.Errorf("%s: %w", expanded[0], err)
	}
	return buf.String(), nil
}

func (d *driver) expand(argv []string, version string) []string {
	pairs := []string{
		"{version}", version,
		"{member.id}", string(d.member.ID),
		"{member.name}", d.member.Name,
	}
	for k, v := range d.member.Properties {
		pairs = append(pairs, "{prop."+k+"}", v)
	}
	replacer := strings.NewReplacer(pairs...)

	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = replacer.Replace(arg)
	}
	return out
}
