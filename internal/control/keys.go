//go:build linux

package control

import (
	"fmt"
	"io"
)

// KeyHelp describes the keys understood by HandleKeys.
const KeyHelp = `Keys:
  h  show this help
  a  toggle continuous autofocus
  f  trigger single autofocus
  p  lock focus
  t  cycle test pattern
  l  live image
  q  quit
`

// HandleKeys dispatches a key sequence from a renderer. Only single-key
// sequences are acted on; "q" belongs to the renderer. Help text is written
// to help when it is non-nil. Control failures are logged and not returned
// because they never end the session.
func (c *Controller) HandleKeys(keys string, help io.Writer) {
	if len(keys) != 1 {
		if keys != "" {
			c.logger.Debug("Ignoring key sequence", "keys", keys)
		}
		return
	}

	var err error
	switch keys[0] {
	case 'h':
		if help != nil {
			fmt.Fprint(help, KeyHelp)
		}
	case 'a':
		err = c.Focus(RequestAuto)
	case 'f':
		err = c.Focus(RequestSingle)
	case 'p':
		err = c.Focus(RequestPause)
	case 't':
		err = c.CyclePattern()
	case 'l':
		err = c.LivePattern()
	default:
		c.logger.Debug("Unbound key", "key", keys)
	}

	if err != nil {
		c.logger.Debug("Key command failed", "key", keys, "error", err)
	}
}
