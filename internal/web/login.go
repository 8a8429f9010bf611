package web

const loginHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Ledger Dash · Login</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #0f172a;
    color: #e2e8f0;
    min-height: 100vh;
    display: flex;
    align-items: center;
    justify-content: center;
  }
  .login-wrap { width: 100%; max-width: 360px; padding: 24px; }
  .login-logo {
    text-align: center;
    font-size: 20px;
    font-weight: 700;
    color: #fff;
    margin-bottom: 28px;
  }
  .login-logo span { color: #38bdf8; }
  .login-card {
    background: #1e293b;
    border: 1px solid #334155;
    border-radius: 12px;
    padding: 26px;
  }
  .login-title { font-size: 15px; font-weight: 600; color: #fff; margin-bottom: 20px; }
  .login-error {
    background: rgba(248, 113, 113, 0.1);
    border: 1px solid rgba(248, 113, 113, 0.3);
    border-radius: 8px;
    color: #f87171;
    font-size: 13px;
    padding: 10px 14px;
    margin-bottom: 16px;
  }
  .login-field { margin-bottom: 16px; }
  .login-field label {
    display: block;
    font-size: 12px;
    color: #94a3b8;
    margin-bottom: 6px;
    text-transform: uppercase;
    letter-spacing: 0.06em;
  }
  .login-field input {
    width: 100%;
    background: #0f172a;
    border: 1px solid #334155;
    border-radius: 8px;
    color: #e2e8f0;
    font-size: 14px;
    padding: 10px 14px;
    outline: none;
  }
  .login-field input:focus { border-color: #38bdf8; }
  .login-btn {
    width: 100%;
    background: #0284c7;
    color: #fff;
    border: none;
    border-radius: 8px;
    font-size: 14px;
    font-weight: 600;
    padding: 11px;
    cursor: pointer;
  }
  .login-btn:hover { background: #0369a1; }
</style>
</head>
<body>
<div class="login-wrap">
  <div class="login-logo">Ledger <span>Dash</span></div>
  <div class="login-card">
    <div class="login-title">Sign in</div>
    <!--ERROR-->
    <form method="POST" action="/login">
      <div class="login-field">
        <label for="username">Username</label>
        <input id="username" name="username" type="text" autocomplete="username" required autofocus>
      </div>
      <div class="login-field">
        <label for="password">Password</label>
        <input id="password" name="password" type="password" autocomplete="current-password" required>
      </div>
      <button class="login-btn" type="submit">Sign in</button>
    </form>
  </div>
</div>
</body>
</html>`
