package testutil

import (
	"net"
	"strconv"
)

// GetAvailablePort returns a tcp port on localhost that was free when checked.
func GetAvailablePort() (string, error) {
	a, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	l, err := net.ListenTCP("tcp", a)
	if err != nil {
		return "", err
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}

// CombineErrChan merges two error channels. The result is closed once both
// inputs are closed.
func CombineErrChan(c1, c2 <-chan error) <-chan error {
	errChan := make(chan error)

	go func() {
		defer close(errChan)
		for c1 != nil || c2 != nil {
			select {
			case err, ok := <-c1:
				if !ok {
					c1 = nil
					continue
				}
				errChan <- err
			case err, ok := <-c2:
				if !ok {
					c2 = nil
					continue
				}
				errChan <- err
			}
		}
	}()

	return errChan
}
