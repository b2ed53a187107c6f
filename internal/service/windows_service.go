//go:build windows

package service

import (
	"fmt"
	"time"

	"go.uber.org/fx"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/debug"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"
)

const (
	// fx start covers the DocuSign token, Postgres and Redis; the SCM is told to allow for it
	startWaitHint = 2 * fx.DefaultTimeout
	stopTimeout   = 30 * time.Second

	// failure counters reset after a quiet day
	recoveryResetSeconds = 24 * 60 * 60

	eventStart = 1
	eventStop  = 2
	eventError = 3
)

var elog debug.Log

// archiverService adapts Application to the service control manager
type archiverService struct {
	app *Application
}

func (s *archiverService) Execute(args []string, requests <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending, WaitHint: uint32(startWaitHint / time.Millisecond)}

	go s.app.Run()

	// Running is reported only once the webhook endpoint is listening
	select {
	case <-s.app.Ready():
	case <-s.app.Done():
		elog.Error(eventError, "archiver failed to start, see the application log")
		return true, 1
	}

	const accepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	elog.Info(eventStart, fmt.Sprintf("%s is accepting Connect events", ServiceDisplayName))

	for {
		select {
		case c := <-requests:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending, WaitHint: uint32(stopTimeout / time.Millisecond)}
				// cancels pipelines still waiting for a signer
				s.app.Shutdown()
				s.app.Wait()
				elog.Info(eventStop, fmt.Sprintf("%s stopped", ServiceDisplayName))
				return false, 0
			default:
				elog.Warning(eventError, fmt.Sprintf("ignoring control request %d", c.Cmd))
			}
		case <-s.app.Done():
			elog.Error(eventError, "archiver exited without a stop request")
			return true, 2
		}
	}
}

// RunService hands the process to the SCM, or to the console harness when isDebug is set
func RunService(isDebug bool, app *Application) {
	run := svc.Run
	if isDebug {
		elog = debug.New(ServiceName)
		run = debug.Run
	} else {
		var err error
		if elog, err = eventlog.Open(ServiceName); err != nil {
			return
		}
	}
	defer elog.Close()

	if err := run(ServiceName, &archiverService{app: app}); err != nil {
		elog.Error(eventError, fmt.Sprintf("%s: %v", ServiceName, err))
	}
}

// withService connects to the SCM and opens the archiver service
func withService(fn func(*mgr.Service) error) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(ServiceName)
	if err != nil {
		return fmt.Errorf("service %s is not installed: %w", ServiceName, err)
	}
	defer s.Close()

	return fn(s)
}

// InstallService registers the archiver with delayed auto start so the network is up
// before the first DocuSign call. A start failure counts as a failure for recovery.
func InstallService(exePath string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer m.Disconnect()

	if existing, err := m.OpenService(ServiceName); err == nil {
		existing.Close()
		return fmt.Errorf("service %s already exists", ServiceName)
	}

	s, err := m.CreateService(ServiceName, exePath, mgr.Config{
		DisplayName:      ServiceDisplayName,
		Description:      ServiceDescription,
		StartType:        mgr.StartAutomatic,
		DelayedAutoStart: true,
		Dependencies:     []string{"Tcpip", "Dnscache"},
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer s.Close()

	if err := eventlog.InstallAsEventCreate(ServiceName, eventlog.Error|eventlog.Warning|eventlog.Info); err != nil {
		fmt.Printf("Warning: event log source not registered: %v\n", err)
	}

	// SharePoint or DocuSign outages usually clear within minutes
	actions := []mgr.RecoveryAction{
		{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
		{Type: mgr.ServiceRestart, Delay: 2 * time.Minute},
		{Type: mgr.ServiceRestart, Delay: 10 * time.Minute},
	}
	if err := s.SetRecoveryActions(actions, recoveryResetSeconds); err != nil {
		fmt.Printf("Warning: recovery actions not set: %v\n", err)
	}
	if err := s.SetRecoveryActionsOnNonCrashFailures(true); err != nil {
		fmt.Printf("Warning: restart on start failure not enabled: %v\n", err)
	}

	return nil
}

// UninstallService deletes the service and its event log source
func UninstallService() error {
	return withService(func(s *mgr.Service) error {
		_ = eventlog.Remove(ServiceName)
		return s.Delete()
	})
}

func StartService() error {
	return withService(func(s *mgr.Service) error {
		return s.Start()
	})
}

// StopService asks the archiver to stop and waits until the SCM reports it stopped
func StopService() error {
	return withService(func(s *mgr.Service) error {
		status, err := s.Control(svc.Stop)
		if err != nil {
			return fmt.Errorf("failed to send stop: %w", err)
		}

		deadline := time.Now().Add(stopTimeout)
		for status.State != svc.Stopped {
			if time.Now().After(deadline) {
				return fmt.Errorf("service %s did not stop within %s", ServiceName, stopTimeout)
			}
			time.Sleep(500 * time.Millisecond)
			if status, err = s.Query(); err != nil {
				return fmt.Errorf("failed to query service state: %w", err)
			}
		}
		return nil
	})
}

func IsWindowsService() (bool, error) {
	return svc.IsWindowsService()
}
