package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/lin/serialport"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool
	Role        lin.Role

	Shell   *ishell.Shell
	Config  *lin.Config
	Port    *serialport.Config
	Session *Session
}

const (
	shellKey       = "$shell"
	unopenedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	hostRole   bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&OpenCmd,
		&CloseCmd,
		&SwapCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.BoolVar(&hostRole, "host", hostRole, "Open the bus as host instead of node.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *lin.Config, portConf *serialport.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
		Port:   portConf,
	}
	if hostRole {
		s.Role = lin.RoleHost
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unopenedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// SessionFrom gets the open session from ishell context, synchronized
// with the simulated bus.
func SessionFrom(c *ishell.Context) *Session {
	s := ShellFrom(c).Session
	s.Sync()
	return s
}

// MustBeOpen wraps command func requires an open bus.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("bus not open"))
			return
		}
		fn(c)
	}
}

// Output prints v as JSON when requested, text otherwise.
func Output(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Result reports the outcome of an engine call, printing OK on success.
func Result(c *ishell.Context, err error) bool {
	if err != nil {
		c.Err(err)
		return false
	}
	if !ShellFrom(c).OutputJSON {
		c.Println("OK")
	}
	return true
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens the bus on port as role.
func (s *Shell) Open(role lin.Role, port string) error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	s.Close()
	var (
		session *Session
		err     error
	)
	if port == SimPort {
		session, err = OpenSim(role, *s.Config)
	} else {
		portConf := *s.Port
		portConf.Name = port
		session, err = OpenSerial(role, *s.Config, portConf)
	}
	if err != nil {
		return err
	}
	s.Session = session
	s.updatePrompt()
	glog.Infof("opened %s", session.Name)
	return nil
}

// Close closes the open bus.
func (s *Shell) Close() {
	if s.Session != nil {
		if err := s.Session.Close(); err != nil {
			glog.Warningf("close %s: %v", s.Session.Name, err)
		}
		s.Session = nil
		s.Shell.SetPrompt(unopenedPrompt)
	}
}

func (s *Shell) updatePrompt() {
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", s.Session.Name))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Port.Name != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Port.Name)
		}
		if err := s.Open(s.Role, s.Port.Name); err != nil {
			glog.Exitf("open %q failed: %v", s.Port.Name, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

// ParseRole parses host or node.
func ParseRole(s string) (lin.Role, error) {
	switch strings.ToLower(s) {
	case "host", "h":
		return lin.RoleHost, nil
	case "node", "n":
		return lin.RoleNode, nil
	}
	return lin.RoleNode, fmt.Errorf("%w: unknown role %q", lin.ErrInvalidArgument, s)
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ports, err := serialport.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			text := strings.Join(ports, "\n")
			if len(ports) == 0 {
				text = "No serial ports found"
			}
			Output(c, ports, text)
		},
	}

	// OpenCmd opens the bus.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "host|node [PORT|sim]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			role, port := s.Role, s.Port.Name
			if len(c.Args) > 0 {
				r, err := ParseRole(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				role = r
			}
			if len(c.Args) > 1 {
				port = c.Args[1]
			}
			if err := s.Open(role, port); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the bus.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// SwapCmd switches to the other engine on the simulated bus.
	SwapCmd = ishell.Cmd{
		Name: "swap",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Session.Swap(); err != nil {
				c.Err(err)
				return
			}
			s.updatePrompt()
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(lin.Default(), serialport.Default()).WithAutoOpen(true).Run(flag.Args()...)
}
