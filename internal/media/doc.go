// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package media holds the data model shared by the control plane: playlist
// items, DRM configuration, track inventory, selection parameters, playback
// options and snapshots.
package media
