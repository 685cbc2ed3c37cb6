package server

const appCSS = `
    :root {
      --bg: #f5f2ec;
      --bg2: #efe4d2;
      --card: #ffffff;
      --ink: #2a241f;
      --muted: #6f665f;
      --ok: #1f8a4c;
      --bad: #b23a48;
      --accent: #8a4b1f;
      --line: #ddd0c0;
      --term-bg: #14110f;
      --term-ink: #e8e2d8;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: Georgia, "Iowan Old Style", serif;
      color: var(--ink);
      background: radial-gradient(circle at 20% 0%, var(--bg2), var(--bg));
      min-height: 100vh;
      display: flex;
      flex-direction: column;
    }
    main { max-width: 820px; width: 100%; margin: 24px auto; padding: 0 16px; flex: 1; }
    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 12px;
      padding: 16px;
      margin-bottom: 16px;
      box-shadow: 0 8px 24px rgba(138,75,31,.08);
    }
    .muted { color: var(--muted); font-size: 13px; }
    a { color: var(--accent); text-decoration: none; }
    a:hover { text-decoration: underline; }
    button,
    a.nav-btn {
      border: 1px solid var(--line);
      border-radius: 8px;
      padding: 8px 10px;
      font-size: 14px;
      line-height: 1.1;
      background: #ffffff;
      color: var(--accent);
      cursor: pointer;
    }
    button:hover:not(:disabled),
    a.nav-btn:hover {
      background: #fbf6ef;
      text-decoration: none;
    }
    button:disabled { opacity: 0.65; cursor: default; }

    .site-header,
    .site-footer {
      display: flex;
      align-items: center;
      justify-content: space-between;
      gap: 12px;
      max-width: 820px;
      width: 100%;
      margin: 0 auto;
      padding: 16px;
    }
    .brand { font-size: 22px; font-weight: 700; color: var(--ink); }
    .site-nav { display: flex; align-items: center; gap: 10px; }
    .site-footer { border-top: 1px solid var(--line); font-style: italic; }

    .flash { border-radius: 8px; padding: 10px 12px; margin-bottom: 12px; }
    .flash-error { background: #fbeaec; color: var(--bad); border: 1px solid #efc6cc; }
    .flash-success { background: #e8f5ee; color: var(--ok); border: 1px solid #bfe1cd; }

    .post-meta { color: var(--muted); font-size: 13px; margin-bottom: 12px; }
    .post-content { line-height: 1.6; }
    .post-content img, .post-content video { max-width: 100%; }
    .read-more { font-weight: 600; }
    .comment { border-top: 1px solid var(--line); padding: 10px 0; }
    .comment-body { margin-top: 4px; line-height: 1.5; }
    .comment-form { display: grid; gap: 8px; margin-top: 12px; }
    .comment-form textarea,
    .login input {
      width: 100%;
      font: inherit;
      padding: 8px;
      border: 1px solid var(--line);
      border-radius: 8px;
    }
    .login { max-width: 360px; margin: 48px auto; }
    .login form { display: grid; gap: 10px; }

    .terminal-shell {
      border: 1px solid var(--line);
      border-radius: 10px;
      overflow: hidden;
      margin: 16px 0;
      background: var(--term-bg);
      color: var(--term-ink);
    }
    .script-header,
    .script-controls {
      display: flex;
      align-items: center;
      justify-content: space-between;
      gap: 8px;
      padding: 8px 10px;
      background: #221d19;
    }
    .script-title { font-family: ui-monospace, Menlo, Consolas, monospace; font-size: 13px; }
    .script-status { font-size: 12px; color: #a89f94; }
    .script-status[data-state="running"] { color: #6fd39a; }
    .script-status[data-state="connecting"] { color: #e6c36a; }
    .script-terminal { padding: 8px 10px; }
    .script-output {
      margin: 0;
      min-height: 120px;
      max-height: 360px;
      overflow: auto;
      white-space: pre-wrap;
      word-break: break-word;
      font: 13px/1.4 ui-monospace, Menlo, Consolas, monospace;
    }
    .script-output .term-error { color: #ff8a8a; }
    .script-input {
      width: 100%;
      margin-top: 6px;
      padding: 6px 8px;
      font: 13px ui-monospace, Menlo, Consolas, monospace;
      color: var(--term-ink);
      background: #1d1916;
      border: 1px solid #3a322b;
      border-radius: 6px;
    }
    .script-error,
    .media-error { color: var(--bad); font-style: italic; }

    .terminal-view:empty { display: none; }
    .terminal-view { padding: 8px 0; text-align: center; }
    .lock-digits { display: inline-flex; gap: 8px; margin-bottom: 6px; }
    .lock-digit {
      width: 40px;
      height: 52px;
      display: inline-flex;
      align-items: center;
      justify-content: center;
      font: 700 26px ui-monospace, Menlo, Consolas, monospace;
      border: 1px solid #3a322b;
      border-radius: 6px;
    }
    .lock-digit.active { border-color: #e6c36a; color: #e6c36a; }
    .cipher-text { font: 18px/1.8 ui-monospace, Menlo, Consolas, monospace; letter-spacing: 2px; }
    .cipher-cell { color: #7a7068; }
    .cipher-cell.revealed { color: var(--term-ink); }
    .cipher-cell.active { text-decoration: underline; color: #e6c36a; }
    .cipher-tiles { display: flex; flex-wrap: wrap; justify-content: center; gap: 6px; margin-top: 8px; }
    .cipher-tile { font-family: ui-monospace, Menlo, Consolas, monospace; min-width: 44px; }
    .cipher-tile.wrong { border-color: var(--bad); color: var(--bad); }

    .media-player {
      border: 1px solid var(--line);
      border-radius: 10px;
      padding: 10px;
      margin: 16px 0;
      background: #fbf8f3;
    }
    .mp-title { font-weight: 600; margin-bottom: 6px; }
    .mp-element { width: 100%; }
    .audio-player .mp-element { display: none; }
    .mp-controls { display: flex; align-items: center; gap: 8px; }
    .mp-progress {
      flex: 1;
      height: 8px;
      background: var(--line);
      border-radius: 4px;
      cursor: pointer;
      overflow: hidden;
    }
    .mp-progress-fill { height: 100%; width: 0; background: var(--accent); }
    .mp-time { font: 12px ui-monospace, Menlo, Consolas, monospace; color: var(--muted); }
    .mp-volume { width: 80px; }
`
