// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ledkey is a container for the packages that drive a stepper
// positioning mechanism from an LED and key control panel.
//
// The motion engine lives in stepperdrive, the panel link in controlpanel
// and the glue that polls one and commands the other in frontpanel.
package ledkey
