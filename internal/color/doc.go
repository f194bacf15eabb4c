// Package color provides the terminal palette and styles of deployctl.
//
// Colors are organized into semantic categories:
//   - Primary: titles
//   - Success: applied resources, available deployments, healthy services
//   - Warning: skipped steps and failed health checks
//   - Error: fatal failures
//   - Muted: de-emphasized text such as durations
//
// Output that is not a terminal, or any output when NO_COLOR is set, is
// rendered without ANSI sequences; call Setup with the destination writer
// before rendering.
//
// # Usage Example
//
//	color.Setup(os.Stdout)
//	fmt.Println(color.SuccessStyle.Render("✓ frontend available"))
//	fmt.Println(color.ErrorStyle.Render("✗ order-service timed out"))
package color
