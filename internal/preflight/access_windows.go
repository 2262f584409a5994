//go:build windows

package preflight

import "os"

// Windows ACLs are not modelled; existence is the best cheap signal.

func accessRead(path string) error {
	_, err := os.Stat(path)
	return err
}

func accessWrite(path string) error {
	_, err := os.Stat(path)
	return err
}

func accessExec(path string) error {
	_, err := os.Stat(path)
	return err
}
