// This program performs administrative tasks for the participation service.
package main

import (
	"github.com/civicledger/participation/app/tooling/admin/cmd"
)

func main() {
	cmd.Execute()
}
