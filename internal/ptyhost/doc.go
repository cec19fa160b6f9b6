// Package ptyhost runs interactive shells on pseudo-terminals.
//
// A Host implements terminal.ProcessHost for processes on the local
// machine. Each session gets a reader goroutine that copies PTY output into
// a scrollback ring and to every output listener in read order, and a wait
// goroutine that marks the session closed when the shell exits. Exited
// sessions stay listed with their exit code until CloseSession removes them.
//
// Liveness is checked against the host bookkeeping and then against the
// process table with gopsutil, so a shell killed outside termdeck reads as
// inactive.
package ptyhost
