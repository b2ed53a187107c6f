//go:build !windows

package service

// RunService runs the application in the foreground; there is no service manager to attach to.
func RunService(isDebug bool, app *Application) {
	app.Run()
}

func InstallService(exePath string) error {
	return errNotWindows
}

func UninstallService() error {
	return errNotWindows
}

func StartService() error {
	return errNotWindows
}

func StopService() error {
	return errNotWindows
}

// IsWindowsService always returns false outside Windows
func IsWindowsService() (bool, error) {
	return false, nil
}
