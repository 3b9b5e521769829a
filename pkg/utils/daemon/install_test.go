package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeSystem(t *testing.T) *[]string {
	t.Helper()

	dir := t.TempDir()
	oldUnit, oldRules, oldRun := unitPath, rulesPath, runCommand
	unitPath = filepath.Join(dir, "systemd", "chargeguru.service")
	rulesPath = filepath.Join(dir, "udev", "99-chargeguru.rules")

	var calls []string
	runCommand = func(name string, args ...string) error {
		calls = append(calls, name+" "+strings.Join(args, " "))
		return nil
	}
	t.Cleanup(func() {
		unitPath, rulesPath, runCommand = oldUnit, oldRules, oldRun
	})
	return &calls
}

func TestInstallWritesUnitAndRule(t *testing.T) {
	calls := fakeSystem(t)

	if err := Install(0x0000, 0x0001); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	unit, err := os.ReadFile(unitPath)
	if err != nil {
		t.Fatal(err)
	}
	exe, _ := os.Executable()
	exe, _ = filepath.Abs(exe)
	if !strings.Contains(string(unit), "ExecStart="+exe+" daemon") {
		t.Errorf("unit does not run the current binary:\n%s", unit)
	}

	rules, err := os.ReadFile(rulesPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(rules), `ATTRS{idVendor}=="0000", ATTRS{idProduct}=="0001"`) {
		t.Errorf("unexpected udev rule: %s", rules)
	}

	want := []string{
		"udevadm control --reload-rules",
		"systemctl daemon-reload",
		"systemctl enable --now chargeguru.service",
	}
	if strings.Join(*calls, "\n") != strings.Join(want, "\n") {
		t.Errorf("commands = %q, want %q", *calls, want)
	}
}

func TestUninstallRemovesFiles(t *testing.T) {
	calls := fakeSystem(t)
	if err := Install(1, 2); err != nil {
		t.Fatal(err)
	}
	*calls = nil

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	for _, p := range []string{unitPath, rulesPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}
	if len(*calls) != 2 || (*calls)[0] != "systemctl disable --now chargeguru.service" {
		t.Errorf("commands = %q", *calls)
	}

	// A second uninstall finds nothing to remove.
	if err := Uninstall(); err != nil {
		t.Errorf("second Uninstall() error = %v", err)
	}
}
