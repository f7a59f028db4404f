package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andreweick/boxwright/internal/auth"
	"github.com/andreweick/boxwright/internal/bootstrap"
	"github.com/andreweick/boxwright/internal/command"
	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/ignition"
	"github.com/andreweick/boxwright/internal/provision"
	"github.com/andreweick/boxwright/internal/remote"
	"github.com/andreweick/boxwright/internal/scaffold"
	"github.com/andreweick/boxwright/internal/session"
	"github.com/andreweick/boxwright/internal/sshconfig"
	"github.com/andreweick/boxwright/internal/topology"
	"github.com/andreweick/boxwright/internal/vagrant"
	"github.com/andreweick/boxwright/internal/vagrantfile"
	"github.com/go-logr/logr"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "boxwright",
		Usage: "Vagrant-backed test machines with root access and shared /etc/hosts",
		Description: `Boxwright renders a Vagrantfile from a hosts file, brings the machines up,
   gives root the box keys and points every host at the others.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hosts",
				Aliases: []string{"f"},
				Value:   scaffold.DefaultFileName,
				EnvVars: []string{"BOXWRIGHT_HOSTS"},
				Usage:   "Hosts file (.toml, anything else is read as YAML)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Configuration name (defaults to the hosts file's base name)",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Value: ".",
				Usage: "Directory that holds .vagrant/" + session.FilesDir,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Log commands, ssh-configs and the Vagrantfile",
			},
			&cli.StringFlag{
				Name:  "box-token",
				Usage: "Vagrant Cloud token (takes precedence over " + auth.EnvBoxToken + " and 1Password)",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Treat Butane warnings as errors",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "init",
				Aliases:   []string{"i"},
				Usage:     "Write a starter hosts file",
				ArgsUsage: "[host-name]",
				Action:    initCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "platform", Usage: "Platform name, e.g. centos-8-x86_64"},
					&cli.StringFlag{Name: "box", Usage: "Vagrant box"},
					&cli.StringFlag{Name: "ip", Usage: "Private network address"},
					&cli.StringFlag{Name: "mac", Usage: `MAC address, or "generate"`},
					&cli.BoolFlag{Name: "butane", Usage: "Add a starter Butane config for Ignition boxes"},
				},
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List the hosts of the hosts file",
				Action:  listCommand,
			},
			{
				Name:    "validate",
				Aliases: []string{"val"},
				Usage:   "Validate the hosts file and its Butane configs",
				Action:  validateCommand,
			},
			{
				Name:   "render",
				Usage:  "Print the Vagrantfile for the hosts file",
				Action: renderCommand,
			},
			{
				Name:   "provision",
				Usage:  "Destroy any previous machines, bring up new ones and bootstrap them",
				Action: provisionCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-provision",
						Usage: "Reuse machines that are already up (same as configure)",
					},
				},
			},
			{
				Name:   "configure",
				Usage:  "Bootstrap machines that are already up",
				Action: configureCommand,
			},
			{
				Name:      "ip",
				Usage:     "Print a host's address from the rendered Vagrantfile",
				ArgsUsage: "<host-name>",
				Action:    ipCommand,
			},
			{
				Name:    "destroy",
				Aliases: []string{"rm"},
				Usage:   "Destroy the machines and remove generated files",
				Action:  destroyCommand,
			},
		},
	}
}

// environment is what every command derives from the global flags.
type environment struct {
	topology *topology.Topology
	session  *session.Session
	log      logr.Logger
}

func loadEnvironment(ctx *cli.Context) (*environment, error) {
	log := newLogger(ctx.App.ErrWriter, ctx.Bool("debug"))

	topo, err := topology.Load(ctx.String("hosts"))
	if err != nil {
		return nil, err
	}

	opts := topo.Options
	if ctx.Bool("strict") {
		opts.Strict = true
	}
	name := ctx.String("name")
	if name == "" {
		name = topo.Name
	}

	s, err := session.New(name, ctx.String("workdir"), opts)
	if err != nil {
		return nil, err
	}
	return &environment{topology: topo, session: s, log: log}, nil
}

func newOrchestrator(ctx *cli.Context, env *environment) (*provision.Orchestrator, error) {
	token, err := auth.ResolveBoxToken(ctx.Context, ctx.String("box-token"), env.session.Options.BoxTokenRef)
	if err != nil {
		return nil, err
	}

	vagrantOpts := []vagrant.Option{
		vagrant.WithBinary(env.session.Options.Binary),
		vagrant.WithLogger(env.log),
	}
	if token != nil {
		env.log.V(1).Info("using Vagrant Cloud token", "source", token.Source)
		vagrantOpts = append(vagrantOpts, vagrant.WithBoxToken(token.Token))
	}
	vagrantClient := vagrant.NewClient(command.ExecRunner{}, env.session.Dir(), vagrantOpts...)

	remoteClient := remote.NewClient(env.log)
	return provision.New(env.session, env.topology.Hosts, provision.Components{
		Vagrant:   vagrantClient,
		SSH:       sshconfig.NewManager(vagrantClient, env.session, env.log),
		Bootstrap: bootstrap.New(remoteClient, bootstrap.ResolvConf{Exec: remoteClient}, env.log),
		Renderer:  vagrantfile.NewRenderer(),
		Ignition:  ignition.NewTranslator(env.session.Options.Strict, env.log),
	}, env.log), nil
}

func initCommand(ctx *cli.Context) error {
	if ctx.NArg() > 1 {
		return errors.New("init takes at most one argument (host name). Usage: boxwright init [flags] [host-name]")
	}

	path := ctx.String("hosts")
	scaffolder := scaffold.NewScaffolder(session.DefaultOptions())
	written, err := scaffolder.CreateTopology(scaffold.ScaffoldOptions{
		HostName:   ctx.Args().First(),
		Platform:   ctx.String("platform"),
		Box:        ctx.String("box"),
		IP:         ctx.String("ip"),
		MACAddress: ctx.String("mac"),
		Butane:     ctx.Bool("butane"),
		OutputDir:  filepath.Dir(path),
		FileName:   filepath.Base(path),
	})
	if err != nil {
		return fmt.Errorf("error creating hosts file: %w", err)
	}

	fmt.Fprintf(ctx.App.Writer, "Created %s\n", written)
	fmt.Fprintf(ctx.App.Writer, "\nNext steps:\n")
	fmt.Fprintf(ctx.App.Writer, "1. Edit the hosts file: %s\n", written)
	fmt.Fprintf(ctx.App.Writer, "2. Check it: boxwright -f %s validate\n", written)
	fmt.Fprintf(ctx.App.Writer, "3. Bring the machines up: boxwright -f %s provision\n", written)
	return nil
}

func listCommand(ctx *cli.Context) error {
	topo, err := topology.Load(ctx.String("hosts"))
	if err != nil {
		return err
	}

	w := ctx.App.Writer
	fmt.Fprintf(w, "%-18s %-22s %-32s %-16s %-14s\n", "NAME", "PLATFORM", "BOX", "IP", "USER")
	fmt.Fprintln(w, "------------------------------------------------------------------------------------------------------")
	for _, h := range topo.Hosts {
		ip := h.IP
		if ip == "" {
			ip = "-"
		}
		fmt.Fprintf(w, "%-18s %-22s %-32s %-16s %-14s\n", h.Name, h.PlatformName, h.Box, ip, h.User)
	}
	return nil
}

func validateCommand(ctx *cli.Context) error {
	env, err := loadEnvironment(ctx)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var problems []error
	if err := host.ValidateAll(env.topology.Hosts); err != nil {
		problems = append(problems, err)
	}

	translator := ignition.NewTranslator(env.session.Options.Strict, env.log)
	for _, h := range env.topology.Hosts {
		if h.MAC != "" && !host.ValidateMAC(h.MAC) {
			problems = append(problems, fmt.Errorf("host %s: invalid MAC address format: %s", h.Name, h.MAC))
		}
		if h.Butane == "" {
			continue
		}
		if _, err := translator.TranslateFile(h.Butane); err != nil {
			problems = append(problems, fmt.Errorf("host %s: %w", h.Name, err))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(ctx.App.ErrWriter, p)
		}
		return errors.New("configuration validation failed")
	}

	fmt.Fprintf(ctx.App.Writer, "Configuration is valid (%d hosts)\n", len(env.topology.Hosts))
	return nil
}

func renderCommand(ctx *cli.Context) error {
	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}

	text, err := vagrantfile.NewRenderer().Render(env.topology.Hosts, env.session.Options)
	if err != nil {
		return err
	}
	fmt.Fprint(ctx.App.Writer, text)
	return nil
}

func provisionCommand(ctx *cli.Context) error {
	if ctx.Bool("no-provision") {
		return configureCommand(ctx)
	}
	return runOrchestrator(ctx, func(o *provision.Orchestrator) error {
		return o.Provision(ctx.Context)
	})
}

func configureCommand(ctx *cli.Context) error {
	return runOrchestrator(ctx, func(o *provision.Orchestrator) error {
		return o.Configure(ctx.Context)
	})
}

func runOrchestrator(ctx *cli.Context, run func(*provision.Orchestrator) error) error {
	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(ctx, env)
	if err != nil {
		return err
	}
	if err := run(orch); err != nil {
		return err
	}
	printHosts(ctx, env.topology.Hosts)
	return nil
}

func printHosts(ctx *cli.Context, hosts []*host.Host) {
	w := ctx.App.Writer
	fmt.Fprintf(w, "%-18s %-16s %-14s %s\n", "NAME", "IP", "USER", "SSH CONFIG")
	for _, h := range hosts {
		fmt.Fprintf(w, "%-18s %-16s %-14s %s\n", h.Name, h.IP, h.User, h.SSH.Config)
	}
}

func ipCommand(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("ip requires exactly one argument (host name). Usage: boxwright ip <host-name>")
	}

	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(ctx, env)
	if err != nil {
		return err
	}

	name := ctx.Args().First()
	ip, found, err := orch.GetIPFromDefinitionFile(name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("host '%s' not found in %s", name, env.session.DefinitionPath())
	}
	fmt.Fprintln(ctx.App.Writer, ip)
	return nil
}

func destroyCommand(ctx *cli.Context) error {
	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(ctx, env)
	if err != nil {
		return err
	}
	if err := orch.Cleanup(ctx.Context); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "Destroyed %s\n", env.session.Name)
	return nil
}
