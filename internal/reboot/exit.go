package reboot

import "os"

var osExit = os.Exit
