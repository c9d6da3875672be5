// Package process runs operator scripts as child processes.
//
// Scripts are started in their own process group so that a timeout or a
// cancelled context terminates the script together with everything it
// spawned. Output is captured (bounded) and logged.
//
// Example usage:
//
//	r := process.NewRunner(process.Config{
//	    Dir:            "/opt/observatory/scripts",
//	    DefaultTimeout: 10 * time.Minute,
//	})
//
//	res, err := r.Run(ctx, "flat_fields.sh", []string{"--filter", "R"}, 0)
//	if err != nil {
//	    log.Printf("script failed (exit %d): %v\n%s", res.ExitCode, err, res.Output)
//	}
package process
