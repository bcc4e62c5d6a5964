// Package bus exposes engine operations as shell commands.
package bus

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/lin.go/pkg/cli/sh"
	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/linbus"
)

type frameOutput struct {
	ID       byte   `json:"id"`
	PID      byte   `json:"pid"`
	Data     string `json:"data"`
	Checksum byte   `json:"checksum"`
}

type stateOutput struct {
	Role          string `json:"role"`
	State         string `json:"state"`
	Baud          int    `json:"baud"`
	Available     int    `json:"available"`
	Buffered      int    `json:"buffered"`
	Idle          string `json:"idle"`
	Breaks        uint64 `json:"breaks"`
	Overflows     uint64 `json:"overflows"`
	SyncOverflows uint64 `json:"sync_overflows"`
}

func outputFrame(c *ishell.Context, f linbus.Frame) {
	sh.Output(c, frameOutput{
		ID:       f.ID,
		PID:      f.PID(),
		Data:     hex.EncodeToString(f.Data),
		Checksum: f.Checksum(),
	}, f.String())
}

func parseLen(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > lin.MaxDataLen {
		return 0, fmt.Errorf("%w: length %q", lin.ErrInvalidArgument, s)
	}
	return n, nil
}

// argID parses the ID argument at index n.
func argID(c *ishell.Context, n int) (byte, bool) {
	if len(c.Args) <= n {
		c.Err(fmt.Errorf("ID required"))
		return 0, false
	}
	id, err := linbus.ParseID(c.Args[n])
	if err != nil {
		c.Err(err)
		return 0, false
	}
	return id, true
}

// argData parses the DATA argument at index n.
func argData(c *ishell.Context, n int) ([]byte, bool) {
	if len(c.Args) <= n {
		c.Err(fmt.Errorf("DATA required"))
		return nil, false
	}
	data, err := linbus.ParseData(c.Args[n])
	if err != nil {
		c.Err(err)
		return nil, false
	}
	return data, true
}

var (
	// HeaderCmd sends a frame header.
	HeaderCmd = ishell.Cmd{
		Name:    "header",
		Aliases: []string{"hdr"},
		Help:    "ID",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			id, ok := argID(c, 0)
			if !ok {
				return
			}
			sh.Result(c, sh.SessionFrom(c).Engine.WriteHeader(id))
		}),
	}

	// SendCmd sends a complete frame.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "ID DATA",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			id, ok := argID(c, 0)
			if !ok {
				return
			}
			data, ok := argData(c, 1)
			if !ok {
				return
			}
			engine := sh.SessionFrom(c).Engine
			if err := engine.WriteHeader(id); err != nil {
				c.Err(err)
				return
			}
			_, err := engine.WriteData(data)
			sh.Result(c, err)
		}),
	}

	// RespondCmd writes a response after a header.
	RespondCmd = ishell.Cmd{
		Name: "respond",
		Help: "DATA",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			data, ok := argData(c, 0)
			if !ok {
				return
			}
			_, err := sh.SessionFrom(c).Engine.WriteData(data)
			sh.Result(c, err)
		}),
	}

	// PollCmd runs break detection once.
	PollCmd = ishell.Cmd{
		Name:    "poll",
		Aliases: []string{"p"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			n := sh.SessionFrom(c).Engine.Available()
			sh.Output(c, map[string]int{"available": n}, strconv.Itoa(n))
		}),
	}

	// IDCmd reads the header of the next frame.
	IDCmd = ishell.Cmd{
		Name: "id",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			engine := sh.SessionFrom(c).Engine
			engine.Drain()
			id, err := engine.ReadHeader()
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, map[string]byte{"id": id}, fmt.Sprintf("0x%02x", id))
		}),
	}

	// ReadCmd reads the next frame.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "[LEN]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			engine := sh.SessionFrom(c).Engine
			engine.Drain()
			id, err := engine.ReadID()
			if err != nil {
				c.Err(err)
				return
			}
			n := lin.DataLengthCode(lin.ProtectedID(id))
			if len(c.Args) > 0 {
				if n, err = parseLen(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			if !engine.WaitForData(n + 1) {
				c.Err(&lin.FrameError{ID: id, Err: lin.ErrTimeout})
				return
			}
			buf := make([]byte, n)
			if _, err = engine.ReadData(buf, n); err != nil {
				c.Err(&lin.FrameError{ID: id, Err: err})
				return
			}
			outputFrame(c, linbus.Frame{ID: id, Data: buf})
		}),
	}

	// WaitCmd waits for received bytes.
	WaitCmd = ishell.Cmd{
		Name:    "wait",
		Aliases: []string{"w"},
		Help:    "LEN",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("LEN required"))
				return
			}
			n, err := strconv.Atoi(c.Args[0])
			if err != nil || n < 0 {
				c.Err(fmt.Errorf("Invalid LEN: %q", c.Args[0]))
				return
			}
			engine := sh.SessionFrom(c).Engine
			if !engine.WaitForData(n) {
				c.Err(lin.ErrTimeout)
				return
			}
			sh.Result(c, nil)
		}),
	}

	// SleepCmd puts the bus to sleep.
	SleepCmd = ishell.Cmd{
		Name: "sleep",
		Help: "[force]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			force := len(c.Args) > 0 && c.Args[0] == "force"
			sh.Result(c, sh.SessionFrom(c).Engine.Sleep(force))
		}),
	}

	// WakeCmd wakes the transceiver.
	WakeCmd = ishell.Cmd{
		Name: "wake",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			sh.Result(c, sh.SessionFrom(c).Engine.Wake())
		}),
	}

	// StateCmd prints the engine state.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"st"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			engine := sh.SessionFrom(c).Engine
			stats := engine.Stats()
			out := stateOutput{
				Role:          engine.Role().String(),
				State:         engine.State().String(),
				Baud:          engine.Baud(),
				Available:     engine.Available(),
				Buffered:      engine.DataAvailable(),
				Idle:          engine.Idle().String(),
				Breaks:        stats.Breaks,
				Overflows:     stats.Overflows,
				SyncOverflows: stats.SyncOverflows,
			}
			sh.Output(c, out, fmt.Sprintf("%s %s baud=%d frames=%d buffered=%d idle=%s breaks=%d overflows=%d/%d",
				out.Role, out.State, out.Baud, out.Available, out.Buffered, out.Idle,
				out.Breaks, out.Overflows, out.SyncOverflows))
		}),
	}

	// WrittenCmd prints what the engine transmitted on the simulated bus.
	WrittenCmd = ishell.Cmd{
		Name: "written",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.SessionFrom(c)
			if !s.Simulated() {
				c.Err(fmt.Errorf("only available on the simulated bus"))
				return
			}
			written := hex.EncodeToString(s.Written())
			sh.Output(c, map[string]string{"written": written}, written)
		}),
	}

	// PIDCmd computes the protected identifier.
	PIDCmd = ishell.Cmd{
		Name: "pid",
		Help: "ID",
		Func: func(c *ishell.Context) {
			id, ok := argID(c, 0)
			if !ok {
				return
			}
			pid := lin.ProtectedID(id)
			sh.Output(c, map[string]byte{"pid": pid}, fmt.Sprintf("0x%02x", pid))
		},
	}

	// ChecksumCmd computes the checksum of data.
	ChecksumCmd = ishell.Cmd{
		Name:    "checksum",
		Aliases: []string{"cs"},
		Help:    "DATA [PID]",
		Func: func(c *ishell.Context) {
			data, ok := argData(c, 0)
			if !ok {
				return
			}
			pid := lin.ExcludeID
			if len(c.Args) > 1 {
				val, err := strconv.ParseUint(c.Args[1], 0, 8)
				if err != nil {
					c.Err(fmt.Errorf("Invalid PID: %v", err))
					return
				}
				pid = int(val)
			}
			sum, err := lin.Checksum(data, pid)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, map[string]byte{"checksum": sum}, fmt.Sprintf("0x%02x", sum))
		},
	}

	// DLCCmd prints the data length advertised by an identifier.
	DLCCmd = ishell.Cmd{
		Name: "dlc",
		Help: "ID",
		Func: func(c *ishell.Context) {
			id, ok := argID(c, 0)
			if !ok {
				return
			}
			n := lin.DataLengthCode(id)
			sh.Output(c, map[string]int{"dlc": n}, strconv.Itoa(n))
		},
	}
)

func init() {
	sh.AddCmds(
		&HeaderCmd,
		&SendCmd,
		&RespondCmd,
		&PollCmd,
		&IDCmd,
		&ReadCmd,
		&WaitCmd,
		&SleepCmd,
		&WakeCmd,
		&StateCmd,
		&WrittenCmd,
		&PIDCmd,
		&ChecksumCmd,
		&DLCCmd,
	)
}
