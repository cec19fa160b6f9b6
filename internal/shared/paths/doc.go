// Package paths provides the per-user file locations used by the client.
//
//	$XDG_STATE_HOME/termdeck/    (or ~/.local/state/termdeck/)
//	  ├── slots.toml   slot name -> session id
//	  └── client.log   client logs while attached
//	$XDG_CONFIG_HOME/termdeck/
//	  └── settings.yaml  live display settings
//
// # Usage
//
//	slots, err := paths.SlotsFile()
//	if err := paths.ValidateSlotName(name); err != nil {
//	    return err
//	}
package paths
